package printer

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// CUPSPrinter submits documents to a CUPS-managed queue through the lp and
// lpstat command line tools. Thin and stateless: CUPS owns spooling and
// device handling.
type CUPSPrinter struct {
	id       string
	name     string
	cupsName string
	server   string
}

type CUPSPrinterConfig struct {
	ID       string
	Name     string
	CUPSName string
	Server   string // empty means the local cupsd
}

func NewCUPSPrinter(cfg CUPSPrinterConfig) *CUPSPrinter {
	return &CUPSPrinter{
		id:       cfg.ID,
		name:     cfg.Name,
		cupsName: cfg.CUPSName,
		server:   cfg.Server,
	}
}

func (p *CUPSPrinter) ID() string   { return p.id }
func (p *CUPSPrinter) Name() string { return p.name }

func (p *CUPSPrinter) SupportedContentTypes() []string {
	return []string{"application/pdf"}
}

func (p *CUPSPrinter) ValidateJob(job *Job) (bool, string) {
	if !contains(p.SupportedContentTypes(), job.ContentType) {
		return false, fmt.Sprintf("unsupported content type: %s", job.ContentType)
	}
	if len(job.Data) == 0 {
		return false, "no data provided"
	}
	if p.cupsName == "" {
		return false, "no CUPS printer configured"
	}
	return true, ""
}

func (p *CUPSPrinter) serverArgs() []string {
	if p.server == "" {
		return nil
	}
	return []string{"-h", p.server}
}

func (p *CUPSPrinter) GetStatus(ctx context.Context) Status {
	if p.cupsName == "" {
		return StatusOffline
	}

	args := append(p.serverArgs(), "-p", p.cupsName)
	out, err := exec.CommandContext(ctx, "lpstat", args...).Output()
	if err != nil {
		// Unknown queue or unreachable cupsd.
		return StatusOffline
	}
	return parseLpstatOutput(string(out))
}

// parseLpstatOutput maps `lpstat -p` wording onto a status.
func parseLpstatOutput(out string) Status {
	lower := strings.ToLower(out)
	switch {
	case strings.Contains(lower, "is idle"):
		return StatusReady
	case strings.Contains(lower, "printing"):
		return StatusBusy
	case strings.Contains(lower, "disabled"), strings.Contains(lower, "stopped"):
		return StatusOffline
	default:
		return StatusError
	}
}

func (p *CUPSPrinter) Print(ctx context.Context, job *Job) (*Result, error) {
	if p.cupsName == "" {
		return &Result{
			Success:   false,
			JobID:     job.ID,
			Message:   "no CUPS printer configured",
			ErrorCode: "NO_PRINTER",
		}, nil
	}

	// lp wants a file on disk.
	tmp, err := os.CreateTemp("", "printgate-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("temp file for job %s: %w", job.ID, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(job.Data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file for job %s: %w", job.ID, err)
	}
	tmp.Close()

	title := job.Filename
	if title == "" {
		title = "document"
	}

	args := append(p.serverArgs(), "-d", p.cupsName, "-t", title)
	if job.Copies > 1 {
		args = append(args, "-n", strconv.Itoa(job.Copies))
	}
	args = append(args, tmp.Name())

	out, err := exec.CommandContext(ctx, "lp", args...).CombinedOutput()
	if err != nil {
		return &Result{
			Success:   false,
			JobID:     job.ID,
			Message:   strings.TrimSpace(string(out)),
			ErrorCode: "PRINT_ERROR",
		}, nil
	}

	log.Printf("submitted job %s to cups queue %s", job.ID, p.cupsName)
	return &Result{
		Success: true,
		JobID:   job.ID,
		Message: strings.TrimSpace(string(out)),
	}, nil
}
