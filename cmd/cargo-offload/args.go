package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// parseCargoArgs splits a cargo-style command line into the flags this
// tool defines and the arguments destined for the remote invocation.
// The command has flag parsing disabled, so args arrives raw: tokens
// matching a defined flag (local or inherited) are parsed here, every
// other token forwards in order. A literal "--" ends recognition and
// marks the passthrough argument vector.
func parseCargoArgs(cmd *cobra.Command, args []string) (cargo, passthrough []string, help bool, err error) {
	cmd.InheritedFlags() // merges persistent flags into cmd.Flags()
	flags := cmd.Flags()

	var own []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			passthrough = args[i+1:]
			break
		}
		f := lookupFlag(flags, arg)
		if f == nil {
			cargo = append(cargo, arg)
			continue
		}
		own = append(own, arg)
		if f.Value.Type() != "bool" && !strings.Contains(arg, "=") && i+1 < len(args) {
			i++
			own = append(own, args[i])
		}
	}
	if err := flags.Parse(own); err != nil {
		return nil, nil, false, err
	}
	help, _ = flags.GetBool("help")
	return cargo, passthrough, help, nil
}

func lookupFlag(flags *pflag.FlagSet, arg string) *pflag.Flag {
	switch {
	case strings.HasPrefix(arg, "--") && len(arg) > 2:
		name := arg[2:]
		if eq := strings.IndexByte(name, '='); eq >= 0 {
			name = name[:eq]
		}
		return flags.Lookup(name)
	case strings.HasPrefix(arg, "-") && len(arg) >= 2:
		return flags.ShorthandLookup(arg[1:2])
	}
	return nil
}
