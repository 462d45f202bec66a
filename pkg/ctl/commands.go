// Package ctl implements rqctl, the command-line client for an rq hub. Each
// invocation runs the same client engine as the desktop app without a UI:
// it connects, waits for the first snapshot, issues at most one command and
// disconnects once the command is flushed.
package ctl

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/NicolasHaas/rq/pkg/client"
	"github.com/NicolasHaas/rq/pkg/logging"
	"github.com/NicolasHaas/rq/pkg/model"
	"github.com/NicolasHaas/rq/pkg/present"
	"github.com/NicolasHaas/rq/pkg/version"
)

// Options are the persistent flags shared by every command.
type Options struct {
	HubURL       string
	SettingsPath string
	LogLevel     string
	Timeout      time.Duration
}

func (o *Options) config() client.Config {
	cfg := client.DefaultConfig()
	if o.HubURL != "" {
		cfg.HubURL = o.HubURL
	}
	cfg.DialTimeout = o.Timeout
	return cfg
}

func (o *Options) storage() *client.SettingsStore {
	return client.NewSettingsStore(o.SettingsPath)
}

// New returns the rqctl root command.
func New() *cobra.Command {
	o := &Options{}
	cmd := &cobra.Command{
		Use:           "rqctl",
		Short:         "Command-line client for rq shared queues.",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.Setup(logging.Options{
				Level:  o.LogLevel,
				Format: "text",
				Output: cmd.ErrOrStderr(),
			})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&o.HubURL, "hub", "", "Hub websocket URL (env "+client.EnvHubURL+", else the settings file)")
	pf.StringVar(&o.SettingsPath, "settings", "", "Settings file (default "+client.DefaultSettingsPath()+")")
	pf.StringVar(&o.LogLevel, "log-level", "warn", "Log level: "+logging.LevelNames())
	pf.DurationVar(&o.Timeout, "timeout", 10*time.Second, "How long to wait for the hub")

	AddCommands(cmd, o)
	return cmd
}

// AddCommands registers every subcommand on topLevel.
func AddCommands(topLevel *cobra.Command, o *Options) {
	addList(topLevel, o)
	addShow(topLevel, o)
	addCreate(topLevel, o)
	for _, a := range []model.Action{
		model.ActionJoin, model.ActionLeave, model.ActionStart,
		model.ActionNag, model.ActionReset, model.ActionDelete,
	} {
		addAction(topLevel, o, a)
	}
	addMessage(topLevel, o)
	addWatch(topLevel, o)
	addSettings(topLevel, o)
	addVersion(topLevel)
}

func addList(topLevel *cobra.Command, o *Options) {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List queues.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withSession(cmd, nil, func(s *session, v client.View) error {
				if asJSON {
					return writeJSON(cmd, v.Queues)
				}
				PrintQueues(cmd.OutOrStdout(), present.ComposeAll(v.Queues, v.User))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON.")
	topLevel.AddCommand(cmd)
}

func addShow(topLevel *cobra.Command, o *Options) {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one queue with its members and messages.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return o.withSession(cmd, nil, func(s *session, v client.View) error {
				q, err := find(v, id)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, q)
				}
				PrintQueue(cmd.OutOrStdout(), present.Compose(q, v.User))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON.")
	topLevel.AddCommand(cmd)
}

func addCreate(topLevel *cobra.Command, o *Options) {
	var group string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a queue.",
		Example: `
rqctl create "#lunch"
rqctl create deploy --group ops
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(strings.Join(args, " "))
			if err := model.ValidateQueueName(name); err != nil {
				return err
			}
			return o.withSession(cmd, nil, func(s *session, v client.View) error {
				s.engine.Dispatcher().Create(name, group)
				PrintOK(cmd.OutOrStdout(), "create %s", name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&group, "group", "", "Restrict the queue to members of this group.")
	topLevel.AddCommand(cmd)
}

func addAction(topLevel *cobra.Command, o *Options, a model.Action) {
	cmd := &cobra.Command{
		Use:   a.String() + " <id>",
		Short: a.Label() + ".",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return o.withSession(cmd, nil, func(s *session, v client.View) error {
				q, err := checkOffered(v, id, a)
				if err != nil {
					return err
				}
				if err := s.engine.Dispatcher().Do(a, id); err != nil {
					return err
				}
				PrintOK(cmd.OutOrStdout(), "%s %s", a, q.Name)
				return nil
			})
		},
	}
	topLevel.AddCommand(cmd)
}

func addMessage(topLevel *cobra.Command, o *Options) {
	cmd := &cobra.Command{
		Use:     "message <id> <text...>",
		Aliases: []string{"msg"},
		Short:   "Post a message to a queue you have joined.",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			text := strings.TrimSpace(strings.Join(args[1:], " "))
			if text == "" {
				return ErrEmptyMessage
			}
			if err := (&model.Message{Content: text}).Validate(); err != nil {
				return err
			}
			return o.withSession(cmd, nil, func(s *session, v client.View) error {
				q, err := find(v, id)
				if err != nil {
					return err
				}
				if !model.CanMessage(q, v.User) {
					return fmt.Errorf("%w: message on %s (join it first)", ErrNotOffered, q.Name)
				}
				s.engine.Dispatcher().Message(id, text)
				PrintOK(cmd.OutOrStdout(), "message %s", q.Name)
				return nil
			})
		},
	}
	topLevel.AddCommand(cmd)
}

func addWatch(topLevel *cobra.Command, o *Options) {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print hub notices until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			onNotice := func(n client.NoticeEvent) { PrintNotice(out, n) }
			return o.withSession(cmd, onNotice, func(s *session, v client.View) error {
				PrintQueues(out, present.ComposeAll(v.Queues, v.User))
				for {
					select {
					case <-cmd.Context().Done():
						return nil
					case v := <-s.views:
						if v.State == client.StateDisconnected {
							return client.ErrConnectionGone
						}
					}
				}
			})
		},
	}
	topLevel.AddCommand(cmd)
}

func addSettings(topLevel *cobra.Command, o *Options) {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the local settings.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the settings file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st := o.storage()
			PrintSettings(cmd.OutOrStdout(), st.Load(), st.Path())
			return nil
		},
	}

	var s model.Settings
	var groups, themeName string
	set := &cobra.Command{
		Use:   "set",
		Short: "Change settings. Only the flags given are written.",
		Example: `
rqctl settings set --username alice --full-name "Alice Liddell" --email alice@example.com
rqctl settings set --groups "team, ops" --theme modern
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st := o.storage()
			cur := st.Load()
			f := cmd.Flags()
			if f.Changed("username") {
				cur.Username = strings.TrimSpace(s.Username)
			}
			if f.Changed("full-name") {
				cur.FullName = strings.TrimSpace(s.FullName)
			}
			if f.Changed("email") {
				cur.Email = strings.TrimSpace(s.Email)
			}
			if f.Changed("groups") {
				cur.Groups = model.ParseGroups(groups)
			}
			if f.Changed("hub-url") {
				cur.HubURL = strings.TrimSpace(s.HubURL)
			}
			if f.Changed("theme") {
				t, err := parseTheme(themeName)
				if err != nil {
					return err
				}
				cur.Theme = t
			}
			if err := st.Save(cur); err != nil {
				return err
			}
			PrintSettings(cmd.OutOrStdout(), cur, st.Path())
			return nil
		},
	}
	set.Flags().StringVar(&s.Username, "username", "", "Username shown to other users.")
	set.Flags().StringVar(&s.FullName, "full-name", "", "Full name.")
	set.Flags().StringVar(&s.Email, "email", "", "Email, used for the avatar.")
	set.Flags().StringVar(&groups, "groups", "", "Comma-separated groups.")
	set.Flags().StringVar(&s.HubURL, "hub-url", "", "Hub websocket URL saved in the settings file.")
	set.Flags().StringVar(&themeName, "theme", "", "Desktop theme: win98, classicq3 or modern.")

	cmd.AddCommand(show, set)
	topLevel.AddCommand(cmd)
}

func addVersion(topLevel *cobra.Command) {
	topLevel.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print build information.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, f := range version.Fields() {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%-9s %s\n", f[0]+":", f[1])
			}
		},
	})
}

// withSession connects, waits for the first snapshot and calls fn with it.
// Commands fn dispatches are flushed before withSession returns.
func (o *Options) withSession(cmd *cobra.Command, onNotice func(client.NoticeEvent), fn func(*session, client.View) error) error {
	s, err := openSession(cmd.Context(), o.config(), o.storage(), onNotice)
	if err != nil {
		return err
	}
	defer s.Close()

	v, err := s.synced(o.Timeout)
	if err != nil {
		return fmt.Errorf("ctl: connect: %w", err)
	}
	return fn(s, v)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("ctl: bad queue id %q", s)
	}
	return id, nil
}

func parseTheme(s string) (model.Theme, error) {
	for _, t := range model.Themes {
		if strings.EqualFold(t.String(), s) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("ctl: unknown theme %q", s)
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
