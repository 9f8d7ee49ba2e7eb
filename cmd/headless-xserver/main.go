package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"git.sr.ht/~sircmpwn/getopt"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/intio/headless-xserver/internal/debugapi"
	"github.com/intio/headless-xserver/internal/metrics"
	"github.com/intio/headless-xserver/internal/transport"
	"github.com/intio/headless-xserver/internal/xserver"
)

var (
	version    string
	display    = 0
	listenAddr = "127.0.0.1:8080"
	width      = uint16(xserver.DefaultWidth)
	height     = uint16(xserver.DefaultHeight)
	relative   bool
)

var errorUsage = errors.New("usage: headless-xserver [-d :N] [-s WxH] [-l addr] [-v] [-r]")

func parseDisplay(v string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(v, ":"))
	if err != nil || n < 0 {
		return 0, errors.Errorf("bad display %q", v)
	}
	return n, nil
}

func parseSize(v string) (uint16, uint16, error) {
	var w, h uint16
	if _, err := fmt.Sscanf(v, "%dx%d", &w, &h); err != nil || w == 0 || h == 0 {
		return 0, 0, errors.Errorf("bad screen size %q", v)
	}
	return w, h, nil
}

func parseArgs(args []string) error {
	opts, optind, err := getopt.Getopts(args, "d:s:l:vr")
	if err != nil {
		return err
	}
	if optind < len(args) {
		return errorUsage
	}
	for _, opt := range opts {
		switch opt.Option {
		case 'd':
			if display, err = parseDisplay(opt.Value); err != nil {
				return err
			}
		case 's':
			if width, height, err = parseSize(opt.Value); err != nil {
				return err
			}
		case 'l':
			listenAddr = opt.Value
		case 'v':
			log.SetLevel(log.DebugLevel)
		case 'r':
			relative = true
		}
	}
	return nil
}

func main() {
	if err := parseArgs(os.Args); err != nil {
		log.Fatal(err)
	}
	if version != "" {
		log.Infof("version: %s", version)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.New(nil)
	x := xserver.NewServer(xserver.Config{
		Width:    width,
		Height:   height,
		Logger:   log.StandardLogger(),
		Metrics:  collector,
		Relative: relative,
	})
	defer x.Close()

	path := transport.SocketPath(display)
	l, err := transport.Listen(path)
	if err != nil {
		log.Fatal(err)
	}
	log.WithFields(log.Fields{"display": display, "socket": path, "size": fmt.Sprintf("%dx%d", width, height)}).Info("serving")

	var api *debugapi.APIServer
	if listenAddr != "" {
		api = debugapi.NewAPIServer(x, listenAddr, collector.Handler(), log.StandardLogger())
		go func() {
			if err := api.Start(); err != nil {
				log.WithError(err).Error("debug API stopped")
				stop()
			}
		}()
	}

	if err := x.ServeListener(ctx, l); err != nil {
		log.WithError(err).Error("listener failed")
	}
	if api != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := api.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("debug API shutdown")
		}
	}
}
