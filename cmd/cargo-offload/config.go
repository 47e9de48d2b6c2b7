package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	cliconfig "github.com/antonkrylov/cargo-offload/internal/cli/config"
)

func newConfigCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage named remote contexts",
	}
	cmd.AddCommand(newConfigSetContextCmd(root))
	cmd.AddCommand(newConfigUseContextCmd(root))
	cmd.AddCommand(newConfigListCmd(root))
	return cmd
}

type setContextFlags struct {
	host         string
	port         uint16
	target       string
	sshOptions   string
	rsyncOptions string
}

func newConfigSetContextCmd(root *rootOptions) *cobra.Command {
	opts := &setContextFlags{}
	cmd := &cobra.Command{
		Use:   "set-context NAME",
		Short: "Create or update a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			name := args[0]
			cfg, err := cliconfig.Load(root.configPath)
			if err != nil {
				return err
			}
			if cfg == nil {
				cfg = &cliconfig.Config{}
			}
			if cfg.Contexts == nil {
				cfg.Contexts = map[string]*cliconfig.Context{}
			}
			ctx := cfg.Contexts[name]
			if ctx == nil {
				ctx = &cliconfig.Context{}
				cfg.Contexts[name] = ctx
			}
			if opts.host != "" {
				ctx.Host = opts.host
			}
			if opts.port != 0 {
				ctx.Port = opts.port
			}
			if opts.target != "" {
				ctx.Target = opts.target
			}
			if opts.sshOptions != "" {
				ctx.SSHOptions = opts.sshOptions
			}
			if opts.rsyncOptions != "" {
				ctx.RsyncOptions = opts.rsyncOptions
			}
			if cfg.CurrentContext == "" {
				cfg.CurrentContext = name
			}
			if err := cfg.Save(root.configPath); err != nil {
				return err
			}
			fmt.Printf("context %q written to %s\n", name, root.configPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.host, "host", "", "remote host as user@host[:port]")
	cmd.Flags().Uint16Var(&opts.port, "port", 0, "ssh port")
	cmd.Flags().StringVar(&opts.target, "target", "", "default target triple for this context")
	cmd.Flags().StringVar(&opts.sshOptions, "ssh-options", "", "extra ssh options, shell quoted")
	cmd.Flags().StringVar(&opts.rsyncOptions, "rsync-options", "", "extra rsync options, shell quoted")
	return cmd
}

func newConfigUseContextCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "use-context NAME",
		Short: "Set the current context",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := cliconfig.Load(root.configPath)
			if err != nil {
				return err
			}
			if cfg == nil {
				return fmt.Errorf("no config file at %s", root.configPath)
			}
			if _, ok := cfg.Contexts[args[0]]; !ok {
				return fmt.Errorf("%w: %s", cliconfig.ErrContextNotFound, args[0])
			}
			cfg.CurrentContext = args[0]
			return cfg.Save(root.configPath)
		},
	}
}

func newConfigListCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured contexts",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := cliconfig.Load(root.configPath)
			if err != nil {
				return err
			}
			if cfg == nil || len(cfg.Contexts) == 0 {
				fmt.Println("no contexts configured")
				return nil
			}
			names := make([]string, 0, len(cfg.Contexts))
			for name := range cfg.Contexts {
				names = append(names, name)
			}
			sort.Strings(names)
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CURRENT\tNAME\tHOST\tPORT\tTARGET")
			for _, name := range names {
				ctx := cfg.Contexts[name]
				marker := ""
				if name == cfg.CurrentContext {
					marker = "*"
				}
				port := ""
				if ctx.Port != 0 {
					port = fmt.Sprintf("%d", ctx.Port)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", marker, name, ctx.Host, port, ctx.Target)
			}
			return w.Flush()
		},
	}
}
