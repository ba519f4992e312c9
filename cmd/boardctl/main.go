// boardctl is the terminal client: it keeps a local override store, talks
// to the board API, and renders the reconciled view.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"boardsync/api"
	"boardsync/dispatch"
	"boardsync/domain"
	"boardsync/fetch"
	"boardsync/overrides"
	"boardsync/reconcile"
)

type app struct {
	apiURL  string
	token   string
	dbPath  string
	logger  *log.Logger
	project string
	target  string
}

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	a := &app{logger: log.New()}
	a.logger.SetLevel(log.GetLevel())

	root := &cobra.Command{
		Use:           "boardctl",
		Short:         "Personal board client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.apiURL, "api", envDefault("BOARD_API_URL", "http://localhost:8080"), "board API base URL")
	root.PersistentFlags().StringVar(&a.token, "token", os.Getenv("BOARD_API_TOKEN"), "bearer token")
	root.PersistentFlags().StringVar(&a.dbPath, "db", defaultDBPath(), "override store path")

	root.AddCommand(a.statusCmd(), a.watchCmd(), a.addCmd(), a.moveCmd(),
		a.doneCmd(), a.reopenCmd(), a.editCmd(), a.ideaCmd(), a.requestCmd(), a.remindCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "boardctl:", err)
		os.Exit(1)
	}
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultDBPath() string {
	if v := os.Getenv("BOARDSYNC_DB"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "boardsync.db"
	}
	return filepath.Join(home, ".boardsync", "overrides.db")
}

func (a *app) openStore() (*overrides.Store, error) {
	if dir := filepath.Dir(a.dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	return overrides.Open(a.dbPath)
}

// dispatchOne runs a single mutation through the dispatcher and waits for
// its outcome.
func (a *app) dispatchOne(fn func(ctx context.Context, d *dispatch.Dispatcher) (string, error)) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	d := dispatch.NewDispatcher(dispatch.NewClient(a.apiURL, a.token), store, a.logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	if _, err := fn(ctx, d); err != nil {
		return err
	}
	select {
	case res := <-d.Results():
		if res.Err != nil {
			if res.Pending {
				fmt.Println("saved locally, sync pending:", res.Err)
				return nil
			}
			return res.Err
		}
		fmt.Printf("ok (%s, %d attempt(s))\n", res.Action, res.Attempts)
		return nil
	case <-time.After(2 * time.Minute):
		return errors.New("timed out waiting for sync result")
	}
}

func (a *app) render(ctx context.Context, f *fetch.Fetcher, store *overrides.Store) error {
	st := f.State()
	if st.Doc == nil {
		if st.Err != nil {
			return st.Err
		}
		return errors.New("no snapshot yet")
	}
	ov, err := store.Snapshot(ctx)
	if err != nil {
		return err
	}
	vm := reconcile.Project(st.Doc, ov)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if st.Stale {
		fmt.Fprintf(w, "! showing last good snapshot (%v)\n", st.Err)
	}
	for _, p := range vm.Projects {
		fmt.Fprintf(w, "%s\t[%s]\n", p.Name, p.ID)
		for _, col := range []domain.Column{domain.ColumnTodo, domain.ColumnUpnext, domain.ColumnDone} {
			for _, t := range p.Columns[col] {
				marker := " "
				if t.Local {
					marker = "+"
				} else if t.Overridden {
					marker = "*"
				}
				who := ""
				if t.Assignee != "" {
					who = "@" + t.Assignee
				}
				fmt.Fprintf(w, "  %s %s\t%s\t%s\t%s\n", marker, col, t.ID, t.Title, who)
			}
		}
	}
	if len(vm.Todos) > 0 {
		fmt.Fprintln(w, "todos")
		for _, t := range vm.Todos {
			fmt.Fprintf(w, "  %s\t%s\t%s\n", t.Column, t.ID, t.Title)
		}
	}
	for _, idea := range vm.Ideas {
		fmt.Fprintf(w, "idea\t%s\t%s\n", idea.ID, idea.Title)
	}
	return w.Flush()
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Fetch the board once and print the reconciled view",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			f := fetch.New(a.apiURL, a.token, a.logger)
			ctx := cmd.Context()
			if err := f.Refresh(ctx); err != nil {
				a.logger.WithField("error", err.Error()).Warn("snapshot fetch failed")
			}
			return a.render(ctx, f, store)
		},
	}
}

func (a *app) watchCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the board and re-render on every change",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			f := fetch.New(a.apiURL, a.token, a.logger, fetch.WithInterval(interval))
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go f.Run(ctx)
			if conn := os.Getenv("REDIS_CONNECTION_STRING"); conn != "" {
				opts, err := redis.ParseURL(conn)
				if err != nil {
					return fmt.Errorf("parse redis url: %w", err)
				}
				go f.WatchRedis(ctx, redis.NewClient(opts), envDefault("INVALIDATION_CHANNEL", "board-updates"))
			}

			local := store.Subscribe()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-f.Updates():
				case <-local:
				}
				if err := a.render(ctx, f, store); err != nil {
					a.logger.WithField("error", err.Error()).Warn("render failed")
				}
			}
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Minute, "poll interval")
	return cmd
}

func (a *app) addCmd() *cobra.Command {
	var priority string
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task := domain.Task{Title: args[0]}
			if priority != "" {
				task.Priority = domain.Priority(priority)
			}
			return a.dispatchOne(func(ctx context.Context, d *dispatch.Dispatcher) (string, error) {
				return d.AddTask(ctx, task, a.project, a.target)
			})
		},
	}
	cmd.Flags().StringVarP(&a.project, "project", "p", "", "project id")
	cmd.Flags().StringVarP(&a.target, "target", "t", "todo", "column or assignee")
	cmd.Flags().StringVar(&priority, "priority", "", "high, medium or low")
	return cmd
}

func (a *app) moveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move <taskID> <target>",
		Short: "Move a task to a column or hand it to an assignee",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.dispatchOne(func(ctx context.Context, d *dispatch.Dispatcher) (string, error) {
				return d.Move(ctx, args[0], a.project, args[1])
			})
		},
	}
	cmd.Flags().StringVarP(&a.project, "project", "p", "", "project id")
	return cmd
}

func (a *app) doneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "done <taskID>",
		Short: "Mark a task complete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.dispatchOne(func(ctx context.Context, d *dispatch.Dispatcher) (string, error) {
				return d.ToggleCompletion(ctx, args[0], a.project, true)
			})
		},
	}
	cmd.Flags().StringVarP(&a.project, "project", "p", "", "project id")
	return cmd
}

func (a *app) reopenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reopen <taskID>",
		Short: "Reopen a completed task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.dispatchOne(func(ctx context.Context, d *dispatch.Dispatcher) (string, error) {
				return d.ToggleCompletion(ctx, args[0], a.project, false)
			})
		},
	}
	cmd.Flags().StringVarP(&a.project, "project", "p", "", "project id")
	return cmd
}

func (a *app) editCmd() *cobra.Command {
	var title, description, priority, due string
	cmd := &cobra.Command{
		Use:   "edit <taskID>",
		Short: "Edit task fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := domain.TaskPatch{}
			if cmd.Flags().Changed("title") {
				patch.Title = &title
			}
			if cmd.Flags().Changed("description") {
				patch.Description = &description
			}
			if cmd.Flags().Changed("priority") {
				p := domain.Priority(priority)
				patch.Priority = &p
			}
			if cmd.Flags().Changed("due") {
				patch.DueDate = &due
			}
			if patch.IsZero() {
				return errors.New("nothing to edit")
			}
			return a.dispatchOne(func(ctx context.Context, d *dispatch.Dispatcher) (string, error) {
				return d.Edit(ctx, args[0], a.project, patch)
			})
		},
	}
	cmd.Flags().StringVarP(&a.project, "project", "p", "", "project id")
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&priority, "priority", "", "high, medium or low")
	cmd.Flags().StringVar(&due, "due", "", "due date")
	return cmd
}

func (a *app) ideaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "idea",
		Short: "Capture and manage ideas",
	}

	add := &cobra.Command{
		Use:   "add <title>",
		Short: "Capture an idea",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.dispatchOne(func(ctx context.Context, d *dispatch.Dispatcher) (string, error) {
				return d.AddIdea(ctx, domain.Idea{Title: args[0]})
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <ideaID>",
		Short: "Delete an idea",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.dispatchOne(func(ctx context.Context, d *dispatch.Dispatcher) (string, error) {
				return d.DeleteIdea(ctx, args[0])
			})
		},
	}

	var title, text string
	edit := &cobra.Command{
		Use:   "edit <ideaID>",
		Short: "Edit an idea",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.IdeaRequest{ID: args[0]}
			if cmd.Flags().Changed("title") {
				req.TitlePatch = &title
			}
			if cmd.Flags().Changed("text") {
				req.IdeaPatch = &text
			}
			if req.TitlePatch == nil && req.IdeaPatch == nil {
				return errors.New("nothing to edit")
			}
			return a.dispatchOne(func(ctx context.Context, d *dispatch.Dispatcher) (string, error) {
				return d.EditIdea(ctx, req), nil
			})
		},
	}
	edit.Flags().StringVar(&title, "title", "", "new title")
	edit.Flags().StringVar(&text, "text", "", "new idea text")

	cmd.AddCommand(add, del, edit)
	return cmd
}

func (a *app) requestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Submit and manage change requests",
	}

	submit := &cobra.Command{
		Use:   "submit <text>",
		Short: "Submit a change request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.dispatchOne(func(ctx context.Context, d *dispatch.Dispatcher) (string, error) {
				return d.SubmitChangeRequest(ctx, args[0])
			})
		},
	}

	cancel := &cobra.Command{
		Use:   "cancel <requestID>",
		Short: "Cancel a change request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.dispatchOne(func(ctx context.Context, d *dispatch.Dispatcher) (string, error) {
				return d.CancelChangeRequest(ctx, args[0])
			})
		},
	}

	cmd.AddCommand(submit, cancel)
	return cmd
}

func (a *app) remindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remind <taskID> <RFC3339 time>",
		Short: "Set a local reminder for a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := time.Parse(time.RFC3339, args[1])
			if err != nil {
				return fmt.Errorf("parse time: %w", err)
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			d := dispatch.NewDispatcher(dispatch.NewClient(a.apiURL, a.token), store, a.logger)
			return d.SetReminder(cmd.Context(), args[0], at)
		},
	}
}
