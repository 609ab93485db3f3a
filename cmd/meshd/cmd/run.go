/*
Copyright (c) The llsec Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cmd

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/meshsec/llsec/admin"
	"github.com/meshsec/llsec/akes"
	"github.com/meshsec/llsec/config"
	"github.com/meshsec/llsec/nbr"
	"github.com/meshsec/llsec/otp"
	"github.com/meshsec/llsec/radio"
	"github.com/meshsec/llsec/sde"
	"github.com/meshsec/llsec/stats"
)

var runFlags struct {
	configPath  string
	selfAddrHex string
	potrKeyHex  string
	groupKeyHex string
	device      string
	baud        int
	ackTagLen   int
	adminAddr   string
	metricsAddr string
}

func init() {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "start the duty-cycled mesh engine",
		RunE:  runRun,
	}
	cmd.Flags().StringVar(&runFlags.configPath, "config", "", "path to YAML config (defaults applied when empty)")
	cmd.Flags().StringVar(&runFlags.selfAddrHex, "self-addr", "", "this node's 8-byte link address, hex-encoded (required)")
	cmd.Flags().StringVar(&runFlags.potrKeyHex, "potr-key", "", "16-byte AES-128 POTR key, hex-encoded (required)")
	cmd.Flags().StringVar(&runFlags.groupKeyHex, "group-key", "", "16-byte AES-128 group key, hex-encoded (required when with_group_keys)")
	cmd.Flags().StringVar(&runFlags.device, "device", "", "serial device to bridge to the radio transceiver (required)")
	cmd.Flags().IntVar(&runFlags.baud, "baud", 115200, "serial baud rate")
	cmd.Flags().IntVar(&runFlags.ackTagLen, "ack-tag-len", 4, "acknowledgement MIC length in bytes")
	cmd.Flags().StringVar(&runFlags.adminAddr, "admin-addr", "127.0.0.1:9100", "address to serve the neighbor-table snapshot on")
	cmd.Flags().StringVar(&runFlags.metricsAddr, "metrics-addr", "127.0.0.1:9101", "address to serve Prometheus metrics on")
	RootCmd.AddCommand(cmd)
}

func parseAddr(s string) (nbr.Addr, error) {
	var a nbr.Addr
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(a) {
		return a, fmt.Errorf("expected %d hex-encoded bytes, got %q", len(a), s)
	}
	copy(a[:], b)
	return a, nil
}

func runRun(_ *cobra.Command, _ []string) error {
	configureVerbosity()

	cfg := config.Default()
	if runFlags.configPath != "" {
		loaded, err := config.Load(runFlags.configPath)
		if err != nil {
			return err
		}
		cfg = *loaded
	} else if err := cfg.Validate(); err != nil {
		return err
	}

	if runFlags.selfAddrHex == "" || runFlags.potrKeyHex == "" || runFlags.device == "" {
		return errors.New("run: --self-addr, --potr-key and --device are required")
	}

	selfAddr, err := parseAddr(runFlags.selfAddrHex)
	if err != nil {
		return fmt.Errorf("--self-addr: %w", err)
	}
	potrKey, err := hex.DecodeString(runFlags.potrKeyHex)
	if err != nil || len(potrKey) != cfg.KeyLen {
		return fmt.Errorf("--potr-key: expected %d hex-encoded bytes", cfg.KeyLen)
	}
	var groupKey []byte
	if cfg.WithGroupKeys {
		if runFlags.groupKeyHex == "" {
			return errors.New("--group-key is required when with_group_keys is set")
		}
		groupKey, err = hex.DecodeString(runFlags.groupKeyHex)
		if err != nil || len(groupKey) != cfg.KeyLen {
			return fmt.Errorf("--group-key: expected %d hex-encoded bytes", cfg.KeyLen)
		}
	}

	now := func() time.Duration { return time.Duration(time.Now().UnixNano()) }
	driver, err := radio.OpenSerial(runFlags.device, runFlags.baud, now)
	if err != nil {
		return fmt.Errorf("opening radio device %s: %w", runFlags.device, err)
	}
	defer driver.Close()

	table := nbr.NewTable(cfg.MaxNeighbors, cfg.MaxTentatives, cfg.WithIndices, true)
	cache := otp.NewHelloAckCache(cfg.MaxTentatives)
	metrics := stats.New()

	header := otp.Header{AddrLen: 8, CounterLen: 4, OTPLen: cfg.OTPLen}
	framer := &otp.Framer{
		Header:   header,
		PotrKey:  potrKey,
		SelfAddr: selfAddr,
		Table:    table,
		Cache:    cache,
	}

	handshake := akes.NewEngine(akes.Config{
		SelfAddr:         selfAddr,
		Lifetime:         cfg.Lifetime,
		WithPairwiseKeys: cfg.WithPairwiseKeys,
		WithGroupKeys:    cfg.WithGroupKeys,
		KeyLen:           cfg.KeyLen,
		GroupKey:         groupKey,
		HelloAckMinWait:  10 * time.Millisecond,
		HelloAckMaxWait:  50 * time.Millisecond,
		Stats:            metrics,
	}, table, framer)

	engine := sde.NewEngine(sde.Config{
		SelfAddr:            selfAddr,
		WakeInterval:        cfg.WakeInterval,
		UnicastSecLevel:     cfg.UnicastSecLevel,
		BroadcastSecLevel:   cfg.BroadcastSecLevel,
		AckTagLen:           runFlags.ackTagLen,
		WithSecurePhaseLock: cfg.WithSecurePhaseLock,
		Stats:               metrics,
	}, driver, sde.MonotonicRawClock{}, header, framer, handshake, table, sde.NewSendQueue())

	adminServer := admin.NewServer(table, runFlags.adminAddr)
	go func() {
		if err := adminServer.Start(); err != nil {
			log.WithError(err).Error("admin server stopped")
		}
	}()

	exporter := stats.NewPrometheusExporter(metrics, runFlags.metricsAddr, 15*time.Second)
	go func() {
		if err := exporter.Start(); err != nil {
			log.WithError(err).Error("metrics exporter stopped")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.WithError(err).Debug("systemd readiness notification failed (not running under systemd?)")
	}

	log.Infof("meshd starting: self=%s device=%s admin=%s metrics=%s", selfAddr, runFlags.device, runFlags.adminAddr, runFlags.metricsAddr)
	if err := engine.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
