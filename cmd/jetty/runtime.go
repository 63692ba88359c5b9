package main

import (
	"fmt"
	"path/filepath"

	"github.com/jettylabs/jetty/internal/config"
	"github.com/jettylabs/jetty/internal/connectors"
	"github.com/jettylabs/jetty/internal/connectors/bi"
	"github.com/jettylabs/jetty/internal/connectors/transform"
	"github.com/jettylabs/jetty/internal/connectors/warehouse"
	"github.com/jettylabs/jetty/internal/fetch"
	"github.com/jettylabs/jetty/internal/plan"
	"github.com/jettylabs/jetty/internal/store"
	"github.com/jettylabs/jetty/internal/yamlconfig"
)

// runtime is everything a command needs, assembled from config and
// credentials.
type runtime struct {
	store      *store.Store
	fetchers   []fetch.Fetcher
	appliers   []plan.Connector
	manifests  []yamlconfig.ConnectorManifest
	closeFuncs []func() error
}

func (r *runtime) Close() {
	for _, f := range r.closeFuncs {
		if err := f(); err != nil {
			logger.WithError(err).Warn("Close failed")
		}
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			logger.WithError(err).Warn("Closing graph store failed")
		}
	}
}

// newRuntime wires the enabled connectors. Secrets come from the
// credential store, never from the config file.
func newRuntime(cfg *config.Config) (*runtime, error) {
	creds := config.NewCredentialStore(filepath.Join(filepath.Dir(cfg.Storage.GraphBlobPath), "credentials.yaml"))

	s, err := store.Open(cfg.Storage.GraphBlobPath)
	if err != nil {
		return nil, err
	}
	r := &runtime{store: s}

	if endpoint := cfg.Connectors.Warehouse; endpoint.Enabled {
		dsn := endpoint.DSNOrURL
		if secret, err := creds.Get(endpoint.Namespace); err == nil && secret != "" {
			dsn = secret
		}
		conn, err := warehouse.New(warehouse.Config{
			Namespace: connectors.Namespace(endpoint.Namespace),
			Account:   endpoint.Namespace,
			DSN:       dsn,
		})
		if err != nil {
			r.Close()
			return nil, err
		}
		r.fetchers = append(r.fetchers, conn)
		r.appliers = append(r.appliers, conn)
		r.manifests = append(r.manifests, conn.Manifest())
		r.closeFuncs = append(r.closeFuncs, conn.Close)
	}

	if endpoint := cfg.Connectors.BI; endpoint.Enabled {
		token, err := creds.Get(endpoint.Namespace)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("reading bi credential: %w", err)
		}
		if token == "" {
			r.Close()
			return nil, fmt.Errorf("bi connector enabled but no credential stored; run `jetty configure %s`", endpoint.Namespace)
		}
		conn := bi.New(bi.Config{
			Namespace:         connectors.Namespace(endpoint.Namespace),
			Server:            endpoint.Namespace,
			BaseURL:           endpoint.DSNOrURL,
			Token:             token,
			RequestsPerSecond: int(endpoint.RateLimitRPS),
		})
		r.fetchers = append(r.fetchers, conn)
		r.appliers = append(r.appliers, conn)
		r.manifests = append(r.manifests, conn.Manifest())
	}

	if endpoint := cfg.Connectors.Transform; endpoint.Enabled {
		conn := transform.New(transform.Config{
			Namespace:    connectors.Namespace(endpoint.Namespace),
			Project:      endpoint.Namespace,
			ManifestPath: endpoint.DSNOrURL,
		})
		r.fetchers = append(r.fetchers, conn)
		r.appliers = append(r.appliers, conn)
		r.manifests = append(r.manifests, conn.Manifest())
	}

	if len(r.fetchers) == 0 {
		r.Close()
		return nil, fmt.Errorf("no connectors enabled; edit the connectors section of your config")
	}
	return r, nil
}
