package main

import (
	"encoding/base64"
	"fmt"
	"net"

	"github.com/rs/zerolog/log"

	"gosuda.org/portal/portal/core/cryptoops"
	"gosuda.org/portal/sdk"
)

type relayListeners struct {
	clients   []*sdk.RDClient
	listeners []net.Listener
}

// listenRelays opens one portal listener per relay URL, all sharing a single
// credential.
func listenRelays(urls []string, name, credKey string) (*relayListeners, error) {
	out := &relayListeners{}
	if len(urls) == 0 {
		return out, nil
	}
	cred := sdk.NewCredential()
	if credKey != "" {
		key, err := base64.StdEncoding.DecodeString(credKey)
		if err != nil {
			return nil, fmt.Errorf("decode cred key: %w", err)
		}
		cred, err = cryptoops.NewCredentialFromPrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("new credential from private key: %w", err)
		}
	}
	for _, u := range urls {
		client, err := sdk.NewClient(func(c *sdk.RDClientConfig) { c.BootstrapServers = []string{u} })
		if err != nil {
			log.Error().Err(err).Str("url", u).Msg("new client failed")
			continue
		}
		out.clients = append(out.clients, client)
		ln, err := client.Listen(cred, name, []string{"http/1.1"})
		if err != nil {
			out.Close()
			return nil, fmt.Errorf("listen (%s): %w", u, err)
		}
		out.listeners = append(out.listeners, ln)
	}
	return out, nil
}

func (r *relayListeners) Close() {
	for _, ln := range r.listeners {
		_ = ln.Close()
	}
	for _, c := range r.clients {
		_ = c.Close()
	}
}
