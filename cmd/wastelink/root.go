package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wastelink/internal/auth"
	"wastelink/internal/config"
	"wastelink/internal/dashboard"
	"wastelink/internal/logging"
	"wastelink/internal/notify"
	"wastelink/internal/store"
	"wastelink/internal/walker"
)

type app struct {
	cfgPath string
	role    string
	user    string

	cfg     *config.Config
	log     *zap.Logger
	client  *walker.Client
	store   *store.Store
	session *dashboard.Session
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "wastelink",
		Short:         "Waste pickup requests, collector tasks and dashboards",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "config file (default ./wastelink.yaml)")
	root.PersistentFlags().StringVar(&a.role, "role", "resident", "acting role: resident, collector or admin")
	root.PersistentFlags().StringVar(&a.user, "user", "res_001", "acting user id")

	root.AddCommand(
		newRequestsCmd(a),
		newTasksCmd(a),
		newCollectorsCmd(a),
		newMetricsCmd(a),
		newRecommendationsCmd(a),
		newDashboardCmd(a),
		newTokenCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) loadConfig() error {
	if a.cfg != nil {
		return nil
	}
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logging.New(cfg.Log)
	return nil
}

func (a *app) principal() (auth.Principal, error) {
	r, err := dashboard.ParseRole(a.role)
	if err != nil {
		return auth.Principal{}, err
	}
	return auth.Principal{UserID: a.user, Role: string(r)}, nil
}

// token returns the configured client token, or mints one for --user/--role.
func (a *app) token() (string, error) {
	if a.cfg.Client.Token != "" {
		return a.cfg.Client.Token, nil
	}
	p, err := a.principal()
	if err != nil {
		return "", err
	}
	return auth.NewVerifier(a.cfg.Auth.Mode, a.cfg.Auth.Secret).Issue(p, time.Hour)
}

// open connects the walker client and builds the store and session.
func (a *app) open(ctx context.Context) error {
	if a.session != nil {
		return nil
	}
	if err := a.loadConfig(); err != nil {
		return err
	}
	role, err := dashboard.ParseRole(a.role)
	if err != nil {
		return err
	}
	tok, err := a.token()
	if err != nil {
		return err
	}

	cc := a.cfg.Client
	sink := notify.NewLogSink(a.log)
	a.client, err = walker.Dial(walker.Config{
		Endpoint:  cc.Endpoint,
		Transport: cc.Transport,
		Timeout:   cc.Timeout,
		Retries:   cc.Retries,
		Token:     tok,
		RateLimit: cc.RateLimit,
		RateBurst: cc.RateBurst,
	}, walker.WithLogger(a.log), walker.WithSink(sink))
	if err != nil {
		return err
	}
	if err := a.client.Initialize(ctx); err != nil {
		return err
	}
	a.store = store.New(a.client, store.WithLogger(a.log), store.WithSink(sink))
	a.session = dashboard.NewSession(role, a.user, a.store, a.client)
	return nil
}

// with wraps a command body that needs a connected session.
func (a *app) with(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := a.open(cmd.Context())
		if err == nil {
			err = fn(cmd, args)
		}
		if cerr := a.close(); err == nil {
			err = cerr
		}
		return err
	}
}

func (a *app) close() error {
	if a.log != nil {
		_ = a.log.Sync()
	}
	if a.client == nil {
		return nil
	}
	err := a.client.Close()
	a.client, a.store, a.session = nil, nil, nil
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
