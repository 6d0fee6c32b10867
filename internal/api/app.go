// Package api assembles the gateway: printers, queues, health monitor
// and the HTTP surface, all hanging off one App value instead of
// package globals.
package api

import (
	"fmt"
	"log"
	"net"
	"strconv"

	"printgate/internal/archive"
	"printgate/internal/config"
	"printgate/internal/health"
	"printgate/internal/printer"
	"printgate/internal/queue"
	"printgate/internal/routing"
	"printgate/internal/webhook"
)

type App struct {
	Config   *config.Config
	Registry *printer.Registry
	Queues   *queue.Manager
	Router   *routing.Router
	Monitor  *health.Monitor
	Archive  *archive.Archive
	Webhooks *webhook.Sender
}

// NewApp builds every component from the config. The monitor is
// created but not started; callers start it alongside the HTTP server.
func NewApp(cfg *config.Config) (*App, error) {
	app := &App{
		Config:   cfg,
		Registry: printer.NewRegistry(),
		Router:   routing.New(cfg.Routing),
	}

	if cfg.Archive.Enabled {
		arch, err := archive.Open(cfg.Archive.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open archive: %w", err)
		}
		app.Archive = arch
	}

	if len(cfg.Webhooks.Endpoints) > 0 {
		app.Webhooks = webhook.NewSender(cfg.Webhooks)
		app.Webhooks.Start()
	}

	queueCfg := queue.Config{
		MaxSize:        cfg.Queue.MaxSize,
		HistorySize:    cfg.Queue.HistorySize,
		OfflineTimeout: cfg.Resilience.OfflineQueueTimeout,
		SweepInterval:  cfg.Queue.SweepInterval,
		OnTerminal:     app.onTerminal,
	}
	app.Queues = queue.NewManager(queueCfg)

	for _, pc := range cfg.Printers {
		p, err := buildPrinter(pc, cfg.Resilience)
		if err != nil {
			return nil, err
		}
		app.Registry.Register(p)
		app.Queues.GetOrCreate(p.ID(), p.Print)
		log.Printf("[PRINTER_REGISTERED] id=%s name=%q type=%s", p.ID(), p.Name(), pc.Type)
	}

	app.Monitor = health.NewMonitor(app.Registry, app, cfg.Resilience.HealthCheckInterval)

	return app, nil
}

func buildPrinter(pc config.PrinterConfig, res printer.ResilienceConfig) (printer.Printer, error) {
	switch pc.Type {
	case "mock":
		return printer.NewMockLabelPrinter(pc.ID, pc.Name), nil
	case "mock-document":
		return printer.NewMockDocumentPrinter(pc.ID, pc.Name), nil
	case "label":
		var renderer printer.Renderer
		if pc.Renderer == "tspl" {
			width, height := pc.LabelWidthMM, pc.LabelHeightMM
			if width == 0 {
				width = 100
			}
			if height == 0 {
				height = 150
			}
			renderer = printer.NewTSPLRenderer(width, height)
		}
		return printer.NewLabelPrinter(printer.LabelPrinterConfig{
			ID:         pc.ID,
			Name:       pc.Name,
			Model:      pc.Model,
			Device:     pc.Device,
			Resilience: res,
			Renderer:   renderer,
		}), nil
	case "cups":
		return printer.NewCUPSPrinter(printer.CUPSPrinterConfig{
			ID:       pc.ID,
			Name:     pc.Name,
			CUPSName: pc.Queue,
			Server:   pc.Server,
		}), nil
	case "network":
		host, portStr, err := net.SplitHostPort(pc.Address)
		if err != nil {
			return nil, fmt.Errorf("printer %s: bad address %q: %w", pc.ID, pc.Address, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("printer %s: bad port in %q", pc.ID, pc.Address)
		}
		return printer.NewNetworkPrinter(printer.NetworkPrinterConfig{
			ID:   pc.ID,
			Name: pc.Name,
			Host: host,
			Port: port,
		}), nil
	default:
		return nil, fmt.Errorf("printer %s: unknown type %q", pc.ID, pc.Type)
	}
}

// onTerminal fans a finished job out to the archive and webhook
// subscribers.
func (a *App) onTerminal(qj queue.QueuedJob) {
	if a.Archive != nil {
		if err := a.Archive.Store(&qj); err != nil {
			log.Printf("[ARCHIVE] failed to store job %s: %v", qj.Job.ID, err)
		}
	}

	if a.Webhooks != nil {
		event := map[queue.Status]webhook.Event{
			queue.StatusCompleted: webhook.EventJobCompleted,
			queue.StatusFailed:    webhook.EventJobFailed,
			queue.StatusExpired:   webhook.EventJobExpired,
			queue.StatusCancelled: webhook.EventJobCancelled,
		}[qj.Status]
		if event != "" {
			a.Webhooks.SendJobEvent(event, webhook.JobEventData{
				JobID:     qj.Job.ID,
				PrinterID: qj.Job.PrinterID,
				Status:    string(qj.Status),
				Error:     qj.Error,
			})
		}
	}
}

// PrinterStatusChanged bridges monitor transitions into queue state.
// Going offline holds the queue; coming back from offline releases any
// held jobs.
func (a *App) PrinterStatusChanged(printerID string, old *printer.Status, next printer.Status) {
	if a.Webhooks != nil {
		prev := ""
		if old != nil {
			prev = string(*old)
		}
		a.Webhooks.SendPrinterStatusChange(printerID, prev, string(next))
	}

	q, ok := a.Queues.Get(printerID)
	if !ok {
		return
	}

	if next == printer.StatusOffline {
		q.SetPrinterOffline()
		return
	}

	wasOffline := old != nil && *old == printer.StatusOffline
	if wasOffline && (next == printer.StatusReady || next == printer.StatusBusy) {
		promoted := q.OnPrinterOnline()
		if promoted > 0 {
			log.Printf("[QUEUE_RELEASED] printer=%s promoted=%d", printerID, promoted)
		}
	}
}

// Close releases resources held by the app. The monitor is stopped by
// the caller before Close.
func (a *App) Close() error {
	if a.Webhooks != nil {
		a.Webhooks.Stop()
	}
	if a.Archive != nil {
		return a.Archive.Close()
	}
	return nil
}
