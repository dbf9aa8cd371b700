package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/samber/do/v2"

	"library-ledger/config"
	"library-ledger/library"
	"library-ledger/logger"
	"library-ledger/render"
	"library-ledger/store"
)

// Console is the terminal the application talks to.
type Console struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// Clock supplies the current time to the ledger and the validator.
type Clock func() time.Time

// newContainer registers every provider. Services are built lazily on first
// invoke.
func newContainer(cfg *config.Config, console *Console, clock Clock) *do.RootScope {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, console)
	do.ProvideValue(injector, clock)

	do.Provide(injector, provideLogger)
	do.Provide(injector, provideGateway)
	do.Provide(injector, provideLedger)
	do.Provide(injector, provideManager)
	do.Provide(injector, providePrinter)

	return injector
}

// LoggerHandle owns the log file, if any.
type LoggerHandle struct {
	*logger.Logger
	file *os.File
}

// Shutdown implements do.Shutdownable.
func (h *LoggerHandle) Shutdown() error {
	if h.file == nil {
		return nil
	}
	return h.file.Close()
}

func provideLogger(i do.Injector) (*LoggerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	console := do.MustInvoke[*Console](i)

	lc := logger.Config{
		Writer:      console.Err,
		Format:      cfg.Logger.Format,
		Environment: cfg.App.Environment,
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development" && cfg.Logger.Level == "debug",
	}

	var file *os.File
	if cfg.Logger.File != "" {
		f, err := logger.OpenFile(cfg.Logger.File)
		if err != nil {
			return nil, err
		}
		file = f
		lc.File = f
	}

	log := logger.New(lc)
	log.Debug("logger ready",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"log_file", cfg.Logger.File,
	)
	return &LoggerHandle{Logger: log, file: file}, nil
}

// GatewayHandle wraps the configured store with shutdown capability.
type GatewayHandle struct {
	library.Gateway
}

// Shutdown implements do.Shutdownable.
func (h *GatewayHandle) Shutdown() error {
	return h.Close()
}

func provideGateway(i do.Injector) (*GatewayHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*LoggerHandle](i)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.App.CommandTimeout)
	defer cancel()

	gw, err := store.Open(ctx, cfg.Store, log.Logger)
	if err != nil {
		return nil, err
	}
	return &GatewayHandle{Gateway: gw}, nil
}

func provideLedger(i do.Injector) (*library.Ledger, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*LoggerHandle](i)
	gw := do.MustInvoke[*GatewayHandle](i)
	clock := do.MustInvoke[Clock](i)

	return library.NewLedger(gw, cfg.LoanPolicy(),
		library.WithClock(clock),
		library.WithObserver(&ledgerLog{base: log.Logger}),
	)
}

func provideManager(i do.Injector) (*library.LibraryManager, error) {
	gw := do.MustInvoke[*GatewayHandle](i)
	ledger := do.MustInvoke[*library.Ledger](i)
	clock := do.MustInvoke[Clock](i)

	return library.NewLibraryManager(gw, ledger, library.NewValidator(clock))
}

func providePrinter(i do.Injector) (*render.Printer, error) {
	cfg := do.MustInvoke[*config.Config](i)
	console := do.MustInvoke[*Console](i)

	return render.New(console.Out, cfg.Output.Format), nil
}
