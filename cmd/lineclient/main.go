// Command lineclient connects to line-protocol peers and runs every
// connection on one reactor loop until all peers have closed.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cyberinferno/linereactor/client"
	"github.com/cyberinferno/linereactor/config"
	"github.com/cyberinferno/linereactor/logger"
	"github.com/cyberinferno/linereactor/peersim"
	"github.com/cyberinferno/linereactor/resolver"
	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

var peerNames = []string{"GREEN", "BLUE", "RED", "AMBER", "VIOLET"}

type addrList []string

func (a *addrList) String() string { return strings.Join(*a, ",") }

func (a *addrList) Set(v string) error {
	*a = append(*a, v)
	return nil
}

var (
	configFlag   = flag.String("config", "", "Path to a YAML config file")
	simulateFlag = flag.Int("simulate", -1, "Number of local scripted peers to start (overrides config)")
	levelFlag    = flag.String("level", "", "Log level (overrides config)")
	addrFlag     addrList
)

func main() {
	flag.Var(&addrFlag, "addr", "Peer host:port; repeatable")
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Default()
	if *configFlag != "" {
		var err error
		if cfg, err = config.Load(*configFlag); err != nil {
			return err
		}
	}

	if len(addrFlag) > 0 {
		cfg.Client.Addresses = addrFlag
	}

	if *simulateFlag >= 0 {
		cfg.Simulate.Peers = *simulateFlag
	}

	if *levelFlag != "" {
		cfg.Log.Level = *levelFlag
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := logger.ParseLevel(cfg.Log.Level)
	// not closed: stderr is still needed for the exit message
	log := logger.New(os.Stderr, cfg.Log.Format, cfg.Log.Service, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	peers, err := startPeers(cfg.Simulate, log)
	defer func() {
		for _, p := range peers {
			p.Stop()
		}
	}()
	if err != nil {
		return err
	}

	for _, p := range peers {
		cfg.Client.Addresses = append(cfg.Client.Addresses, p.Address())
	}

	res, closeRes := newResolver(cfg.Resolver)
	defer closeRes()

	c := client.New(cfg.Client, log, res)
	c.OnConnectionState(func(e client.ConnectionStateEvent) {
		log.Debug("connection state", logger.Conn(uint32(e.Token)),
			logger.Field{Key: "address", Value: e.Address},
			logger.Field{Key: "state", Value: e.State.String()})
	})

	runErr := c.Run(ctx)
	for token, task := range c.Tasks() {
		log.Info("final state", logger.Conn(uint32(token)),
			logger.Field{Key: "state", Value: task.State().String()},
			logger.Field{Key: "violations", Value: len(task.Violations())})
	}

	return runErr
}

func startPeers(cfg config.SimulateConfig, log logger.Logger) ([]*peersim.Server, error) {
	var peers []*peersim.Server
	for i := range cfg.Peers {
		name := peerNames[i%len(peerNames)]
		if i >= len(peerNames) {
			name = fmt.Sprintf("%s%d", name, i/len(peerNames))
		}

		p := &peersim.Server{
			Logger: log,
			Name:   name,
			Addr:   "127.0.0.1:0",
			Script: peersim.DemoScript(name),
			Linger: cfg.Linger,
		}
		if err := p.Start(); err != nil {
			return peers, err
		}

		peers = append(peers, p)
	}

	return peers, nil
}

func newResolver(cfg config.ResolverConfig) (*resolver.Resolver, func()) {
	if cfg.Backend == config.BackendRedis {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return resolver.New(resolver.NewRedisCache[[]string](rdb, cfg.RedisPrefix), cfg.TTL, nil),
			func() { _ = rdb.Close() }
	}

	mc := resolver.NewMemoryCache[[]string](cache.NoExpiration, cfg.TTL)
	return resolver.New(mc, cfg.TTL, nil), func() {}
}
