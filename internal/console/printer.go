package console

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"crypto-snapshot/internal/domain"

	"github.com/charmbracelet/lipgloss"
)

const (
	separator        = "***************************************"
	favorableQuote   = "Audentes fortuna iuvat - Virgil, Aeneid X 284"
	unfavorableQuote = "Durate, et vosmet rebus servate secundis - Virgil, Aeneid I 207"
)

// Printer writes the human-readable progress lines of the pipeline.
// Colors are dropped automatically when the writer is not a terminal.
type Printer struct {
	mu  sync.Mutex
	out io.Writer

	banner  lipgloss.Style
	session lipgloss.Style
	info    lipgloss.Style
	success lipgloss.Style
	warn    lipgloss.Style
	failure lipgloss.Style
	badge   lipgloss.Style
}

func New(out io.Writer) *Printer {
	if out == nil {
		out = os.Stdout
	}
	r := lipgloss.NewRenderer(out)
	return &Printer{
		out:     out,
		banner:  r.NewStyle().Background(lipgloss.Color("2")).Foreground(lipgloss.Color("0")),
		session: r.NewStyle().Background(lipgloss.Color("6")).Foreground(lipgloss.Color("0")),
		info:    r.NewStyle().Foreground(lipgloss.Color("4")),
		success: r.NewStyle().Foreground(lipgloss.Color("2")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("3")),
		failure: r.NewStyle().Foreground(lipgloss.Color("1")),
		badge:   r.NewStyle().Background(lipgloss.Color("1")),
	}
}

func (p *Printer) println(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, line)
}

func (p *Printer) BotStarted(at time.Time, reportTime, currency string) {
	p.println(p.banner.Render("Starting bot - " + domain.FormatTimestamp(at)))
	p.println(p.info.Render(fmt.Sprintf("Daily report scheduled at %s, converted in %s", reportTime, currency)))
}

func (p *Printer) SessionStarted(at time.Time) {
	p.println(separator)
	p.println(p.session.Render("Starting new session - " + domain.FormatTimestamp(at)))
	p.println(p.info.Render("Fetching data..."))
}

func (p *Printer) FetchSucceeded(at time.Time) {
	p.println(p.success.Render("Data retrieved successfully - " + domain.FormatTimestamp(at)))
}

// FetchFailed reports why the upstream could not be queried.
func (p *Printer) FetchFailed(err error) {
	var upstream *domain.UpstreamError
	msg := err.Error()
	if errors.As(err, &upstream) {
		msg = fmt.Sprintf("%s (status %d)", upstream.Message, upstream.StatusCode)
	}
	p.println(p.badge.Render("Error:") + "  " + p.failure.Render(msg))
	p.println(p.failure.Render("Run aborted, nothing was saved"))
}

func (p *Printer) CalculatingReturn() {
	p.println(p.info.Render("Calculating investment returns for today . . ."))
}

func (p *Printer) ReturnCalculated(r domain.DailyReturn) {
	p.println(p.info.Render("Investment return calculated: "))
	if r.Favorable() {
		p.println(p.success.Render(r.Formatted))
		p.println(favorableQuote)
		return
	}
	p.println(p.warn.Render(r.Formatted))
	p.println(unfavorableQuote)
}

func (p *Printer) NoPriorData() {
	p.println(p.failure.Render("No data are available for yesterday since this is the first time this bot is running... Skipping return calculations"))
}

// PriorDataUnreadable reports a prior-day record that exists but could not be used.
func (p *Printer) PriorDataUnreadable(err error) {
	p.println(p.badge.Render("Error:") + "  " + p.failure.Render("Yesterday's data could not be read: "+err.Error()))
	p.println(p.failure.Render("Skipping return calculations"))
}

func (p *Printer) ReturnUnavailable(err error) {
	p.println(p.warn.Render("Investment return unavailable: " + err.Error()))
}

func (p *Printer) SaveFailed(err error) {
	p.println(p.badge.Render("Error:") + "  " + p.failure.Render("Could not save today's data: "+err.Error()))
}

func (p *Printer) Completed(d time.Duration) {
	p.println(fmt.Sprintf("Task completed in %v seconds", d.Seconds()))
	p.println(p.info.Render("Everything done for today, I'm going to sleep"))
}
