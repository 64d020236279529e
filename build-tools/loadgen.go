//go:build ignore

// Run: go run ./build-tools/loadgen.go -addr http://localhost:8080 -rps 200 -duration 60s -pairs 40 -block 21000000
//
// With auth: add -key dev_private.pem -iss ratepath-auth -aud ratepath

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"math"
	mrand "math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"ratepath/internal/config"
	"ratepath/internal/security"
)

func main() {
	var (
		addr     = flag.String("addr", "http://localhost:8080", "base url of the api")
		rps      = flag.Int("rps", 200, "requests per second target")
		duration = flag.Duration("duration", 30*time.Second, "how long to run")
		pairs    = flag.Int("pairs", 40, "how many random token pairs to cycle through")
		tokens   = flag.String("tokens", "", "comma-separated token addresses to use instead of random ones")
		block    = flag.Uint64("block", 21_000_000, "center block for the ?block= parameter")
		spread   = flag.Int64("spread", 500, "random +/- offset applied to the block per request")
		key      = flag.String("key", "", "path to an RSA private key, mints a bearer token when set")
		iss      = flag.String("iss", "", "issuer claim for the minted token")
		aud      = flag.String("aud", "", "audience claim for the minted token")
		sub      = flag.String("sub", "loadgen", "subject claim for the minted token")
	)
	flag.Parse()

	addresses := splitTrim(*tokens)
	if len(addresses) == 0 {
		for i := 0; i < *pairs; i++ {
			addresses = append(addresses, "0x"+randHex(40))
		}
	}
	if len(addresses) < 2 {
		fmt.Println("need at least two token addresses")
		os.Exit(1)
	}

	var bearer string
	if *key != "" {
		signer, err := security.NewRS256Signer(&config.JWTConfig{
			PrivateKeyPath: *key,
			Issuer:         *iss,
			Audience:       *aud,
		})
		if err != nil {
			fmt.Printf("signer init error: %v\n", err)
			os.Exit(1)
		}
		token, err := signer.Mint(*sub, *duration+time.Minute, "", time.Time{}, nil)
		if err != nil {
			fmt.Printf("mint error: %v\n", err)
			os.Exit(1)
		}
		bearer = "Bearer " + token
	}

	cli := &http.Client{Timeout: 10 * time.Second}

	fmt.Printf("loadgen → addr=%s rps=%d duration=%s pairs=%d\n", *addr, *rps, duration.String(), len(addresses))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		sent    atomic.Int64
		ok2xx   atomic.Int64
		code4xx atomic.Int64
		code429 atomic.Int64
		code5xx atomic.Int64
		wg      sync.WaitGroup
	)

	fire := func() {
		defer wg.Done()

		t0 := addresses[mrand.Intn(len(addresses))]
		t1 := addresses[mrand.Intn(len(addresses))]
		for t1 == t0 {
			t1 = addresses[mrand.Intn(len(addresses))]
		}
		b := int64(*block) + mrand.Int63n(2*(*spread)+1) - *spread

		url := fmt.Sprintf("%s/tokens/%s/to/%s?block=%d", strings.TrimRight(*addr, "/"), t0, t1, b)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return
		}
		if bearer != "" {
			req.Header.Set("Authorization", bearer)
		}

		resp, err := cli.Do(req)
		if err != nil {
			return
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		sent.Add(1)
		switch {
		case resp.StatusCode < 300:
			ok2xx.Add(1)
		case resp.StatusCode == http.StatusTooManyRequests:
			code429.Add(1)
		case resp.StatusCode < 500:
			code4xx.Add(1)
		default:
			code5xx.Add(1)
		}
	}

	start := time.Now()
	end := start.Add(*duration)

	// steady pace with a little drift
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	perTick := float64(*rps) / 10.0 // 10 ticket in sec
	accum := 0.0

loop:
	for {
		select {
		case <-ctx.Done():
			fmt.Println("signal received, stopping…")
			break loop
		case now := <-tick.C:
			if now.After(end) {
				break loop
			}

			accum += perTick
			batch := int(math.Floor(accum))
			if batch <= 0 {
				continue
			}
			accum -= float64(batch)

			for i := 0; i < batch; i++ {
				wg.Add(1)
				go fire()
			}
		}
	}

	fmt.Println("draining…")
	wg.Wait()

	elapsed := time.Since(start).Seconds()
	total := sent.Load()
	fmt.Printf("done: sent=%d (%.1f/s) 2xx=%d 4xx=%d 429=%d 5xx=%d\n",
		total, float64(total)/elapsed, ok2xx.Load(), code4xx.Load(), code429.Load(), code5xx.Load())
}

func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func randHex(n int) string {
	b := make([]byte, n/2)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
