package main

import (
	"context"
	"io"

	"github.com/BearBump/TrackLedger/config"
	"github.com/BearBump/TrackLedger/internal/services/shipments"
	"github.com/BearBump/TrackLedger/internal/storage/leveldbkv"
	"github.com/BearBump/TrackLedger/internal/storage/sqlitekv"
	"github.com/BearBump/TrackLedger/internal/store"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// localBackend is what the file backends offer on top of store.Backend.
type localBackend interface {
	store.Backend
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

type cli struct {
	out io.Writer

	configPath string
	backend    string
	path       string
	user       string
	verbose    bool

	log     *zap.Logger
	kv      localBackend
	key     string
	svc     *shipments.Service
	closeFn func() error
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	root := &cobra.Command{
		Use:   "shipctl",
		Short: "Inspect and edit a local shipment tracking store",
		Long: `shipctl works on the same store file the track-store service uses.

Admin commands:
  register - register a tracking number with a status (upsert)
  status   - append a status change to a number's history
  ledger   - list admin-registered numbers
  keys     - list snapshot keys in the backend
  reset    - drop the store snapshot

User commands:
  claim, check, list, delete, history`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  c.open,
		PersistentPostRunE: c.close,
	}

	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", "", "YAML config; its store section fills unset flags")
	pf.StringVar(&c.backend, "backend", "", "store backend: sqlite or leveldb (default sqlite)")
	pf.StringVar(&c.path, "path", "", "store file (sqlite) or directory (leveldb)")
	pf.StringVar(&c.user, "user", "", "user id for claim/check/list/delete")
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(
		c.claimCmd(),
		c.checkCmd(),
		c.listCmd(),
		c.deleteCmd(),
		c.historyCmd(),
		c.registerCmd(),
		c.statusCmd(),
		c.ledgerCmd(),
		c.keysCmd(),
		c.resetCmd(),
	)
	return root
}

func (c *cli) open(cmd *cobra.Command, _ []string) error {
	c.log = zap.NewNop()
	if cmd.Name() == "help" {
		return nil
	}
	if c.verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return errors.Wrap(err, "init logger")
		}
		c.log = l
	}

	var storeCfg config.StoreConfig
	if c.configPath != "" {
		cfg, err := config.LoadConfig(c.configPath)
		if err != nil {
			return err
		}
		storeCfg = cfg.Store
	}
	if c.backend == "" {
		c.backend = storeCfg.Backend
	}
	if c.path == "" {
		c.path = storeCfg.Path
	}

	var backend localBackend
	switch c.backend {
	case "", "sqlite":
		if c.path == "" {
			c.path = "data/trackledger.db"
		}
		st, err := sqlitekv.Open(c.path)
		if err != nil {
			return err
		}
		backend, c.closeFn = st, st.Close
	case "leveldb":
		if c.path == "" {
			c.path = "data/trackledger.ldb"
		}
		st, err := leveldbkv.Open(c.path, false)
		if err != nil {
			return err
		}
		backend, c.closeFn = st, st.Close
	default:
		return errors.Errorf("shipctl supports sqlite and leveldb backends, got %q", c.backend)
	}

	c.kv = backend
	c.key = storeCfg.Key
	if c.key == "" {
		c.key = store.DefaultKey
	}

	st := store.New(backend,
		store.WithKey(c.key),
		store.WithDefaultUser(storeCfg.DefaultUserID),
		store.WithLogger(c.log))
	if err := st.Load(cmd.Context()); err != nil {
		return err
	}
	c.svc = shipments.New(st, nil, c.log)
	return nil
}

func (c *cli) close(*cobra.Command, []string) error {
	if c.log != nil {
		_ = c.log.Sync()
	}
	if c.closeFn == nil {
		return nil
	}
	err := c.closeFn()
	c.closeFn = nil
	return err
}
