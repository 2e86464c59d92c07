package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"mimic-swap/config"
	"mimic-swap/pkg/auth"
	"mimic-swap/pkg/client"
	"mimic-swap/pkg/history"
	"mimic-swap/pkg/logging"
	"mimic-swap/pkg/pricing"
	"mimic-swap/pkg/protocol"
	"mimic-swap/pkg/tokens"
	"mimic-swap/pkg/wallet"
)

// app carries what every command builds from the configuration
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	fs      afero.Fs
	json    bool
	verbose bool
	closers []func()
}

func loadApp(cmd *cobra.Command) (*app, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, closer, err := logging.New(logging.Options{
		Verbose: verbose,
		Level:   cfg.LogLevel,
	})
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		log:     log.With().Str("command", cmd.Name()).Logger(),
		fs:      afero.NewOsFs(),
		json:    jsonOutput,
		verbose: verbose,
	}
	a.onClose(func() { _ = closer.Close() })
	return a, nil
}

// mustLoadApp prints the error and exits like the other commands do
func mustLoadApp(cmd *cobra.Command) *app {
	a, err := loadApp(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	return a
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases everything the app opened, newest first
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) fail(err error) {
	a.log.Error().Err(err).Msg("Command failed")
	a.Close()
	printError(err)
	os.Exit(1)
}

func (a *app) wallet(chainID int64) (*wallet.EVMWallet, error) {
	if err := a.cfg.RequireWallet(); err != nil {
		return nil, err
	}
	rpc, err := a.cfg.RPCURL(chainID)
	if err != nil {
		return nil, err
	}
	w, err := wallet.Dial(rpc, a.cfg.PrivateKey, wallet.Options{
		ChainID: chainID,
		Logger:  a.log,
	})
	if err != nil {
		return nil, err
	}
	a.onClose(w.Close)
	return w, nil
}

func (a *app) signer() (*wallet.Signer, error) {
	if err := a.cfg.RequireWallet(); err != nil {
		return nil, err
	}
	return wallet.NewSigner(a.cfg.PrivateKey)
}

func (a *app) sessionStore() (auth.Store, error) {
	s := a.cfg.Session
	if s.Backend == config.SessionRedis {
		rdb := redis.NewClient(&redis.Options{Addr: s.RedisAddr})
		a.onClose(func() { _ = rdb.Close() })
		return auth.NewRedisStore(rdb, ""), nil
	}
	return auth.NewFileStore(a.fs, s.Path)
}

func (a *app) authClient() (*auth.Client, error) {
	if err := a.cfg.RequireAPI(); err != nil {
		return nil, err
	}
	store, err := a.sessionStore()
	if err != nil {
		return nil, err
	}
	return auth.NewClient(a.cfg.APIBaseURL, store, a.cfg.Session.TTL, a.log)
}

// session returns a signed-in session for the signer, signing in if needed
func (a *app) session(ctx context.Context, signer auth.MessageSigner) (*auth.Session, error) {
	ac, err := a.authClient()
	if err != nil {
		return nil, err
	}
	return ac.Ensure(ctx, signer)
}

func (a *app) protocol(apiKey string) (*protocol.Client, error) {
	if err := a.cfg.RequireAPI(); err != nil {
		return nil, err
	}
	opts := []protocol.Option{protocol.WithLogger(a.log)}
	if apiKey != "" {
		opts = append(opts, protocol.WithAPIKey(apiKey))
	}
	return protocol.NewClient(a.cfg.APIBaseURL, opts...)
}

func (a *app) tokenList() (*tokens.List, error) {
	return tokens.Load(a.fs, a.cfg.TokenListPath)
}

func (a *app) history() (*history.Storage, error) {
	return history.NewStorage(a.fs, a.cfg.HistoryPath)
}

func (a *app) pricer() *pricing.Pricer {
	return pricing.NewPricer(client.NewOneClickClient(a.cfg.OneClickJWT,
		client.WithBaseURL(a.cfg.OneClickURL),
		client.WithLogger(a.log),
	))
}

func printJSON(v any) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	fmt.Println(string(jsonData))
}
