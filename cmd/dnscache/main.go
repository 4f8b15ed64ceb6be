// Command dnscache is a caching DNS forwarding proxy: it listens on a
// UDP endpoint, forwards recursive queries to a single upstream
// resolver, and persists the A/AAAA answers it observes so it can keep
// answering from cache past their advertised TTL.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mikispag/dnscache/internal/engine"
	"github.com/mikispag/dnscache/internal/netio"
	"github.com/mikispag/dnscache/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type cliOptions struct {
	negTTL  uint64
	maxTTL  uint32
	minTTL  uint32
	deletes []string
	debug   bool
}

func main() {
	var opt cliOptions

	cmd := &cobra.Command{
		Use:   "dnscache <listen-addr> <upstream-addr> <store-path>",
		Short: "Caching DNS forwarding proxy",
		Long: `dnscache listens on a UDP endpoint, forwards recursive queries to a
single configured upstream resolver, and persists the A (IPv4) and AAAA
(IPv6) answers it observes in a local store keyed by domain name. On
subsequent queries it replies directly from the cache, serving stale
entries while a background refresh is in flight and coalescing
concurrent requests for the same name onto a single upstream query.`,
		Args:         cobra.ExactArgs(3),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opt, args[0], args[1], args[2])
		},
	}

	cmd.Flags().Uint64Var(&opt.negTTL, "neg-ttl", 30, "negative cache entry age, in seconds, beyond which a lookup triggers a background refresh")
	cmd.Flags().Uint32Var(&opt.maxTTL, "max-ttl", 0xFFFFFFFF, "maximum TTL of a cached A/AAAA record, in seconds")
	cmd.Flags().Uint32Var(&opt.minTTL, "min-ttl", 0, "minimum TTL of a cached A/AAAA record, in seconds")
	cmd.Flags().StringArrayVar(&opt.deletes, "delete", nil, "delete this domain from the store before starting (repeatable)")
	cmd.Flags().BoolVarP(&opt.debug, "debug", "d", false, "print debug log messages")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(opt cliOptions, listenAddr, upstreamAddr, storePath string) error {
	log := logrus.New()
	if opt.debug {
		log.SetLevel(logrus.DebugLevel)
	}

	db, err := store.Open(storePath, 0)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer db.Close()

	for _, dom := range opt.deletes {
		if err := db.Delete(dom); err != nil {
			return fmt.Errorf("deleting %q: %w", dom, err)
		}
		log.Infof("deleted %q from the store", dom)
	}

	net, err := netio.Listen(listenAddr, upstreamAddr, log)
	if err != nil {
		return fmt.Errorf("binding listener: %w", err)
	}
	defer net.Close()

	eng := engine.New(db, net, engine.Options{
		NegTTL: opt.negTTL,
		MaxTTL: opt.maxTTL,
		MinTTL: opt.minTTL,
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("shutting down")
		cancel()
		net.Close()
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(ctx) })

	log.Infof("dnscache listening on %s, forwarding to %s", listenAddr, upstreamAddr)
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
