package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/asticode/go-astidab"
	"github.com/asticode/go-astikit"
	"github.com/pkg/profile"
)

// Flags
var (
	ctx, cancel     = context.WithCancel(context.Background())
	cpuProfiling    = flag.Bool("cp", false, "if yes, cpu profiling is enabled")
	format          = flag.String("f", "", "the format")
	inputPath       = flag.String("i", "", "the input path")
	memoryProfiling = flag.Bool("mp", false, "if yes, memory profiling is enabled")
)

const fibSize = 32

func main() {
	// Init
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s <ensemble|events>:\n", os.Args[0])
		flag.PrintDefaults()
	}
	cmd := astikit.FlagCmd()
	flag.Parse()
	astidab.SetLogger(log.Default())

	// Handle signals
	handleSignals()

	// Start profiling
	if *cpuProfiling {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	} else if *memoryProfiling {
		defer profile.Start(profile.MemProfile, profile.ProfilePath(".")).Stop()
	}

	// Open the FIB dump
	if len(*inputPath) <= 0 {
		log.Fatal(errors.New("use -i to indicate an input path"))
	}
	f, err := os.Open(*inputPath)
	if err != nil {
		log.Fatal(fmt.Errorf("astidab: opening %s failed: %w", *inputPath, err))
	}
	defer f.Close()

	// Create the decoder
	var obs astidab.EnsembleObserver
	if cmd == "events" {
		obs = eventLogger{}
	}
	dec := astidab.NewFICDecoder(obs)

	// Feed FIBs
	if err = feed(dec, f); err != nil {
		log.Fatal(fmt.Errorf("astidab: feeding FIBs failed: %w", err))
	}

	// Print the acquired ensemble
	switch *format {
	case "json":
		e := json.NewEncoder(os.Stdout)
		e.SetIndent("", "  ")
		if err = e.Encode(newEnsemble(dec)); err != nil {
			log.Fatal(fmt.Errorf("astidab: json encoding to stdout failed: %w", err))
		}
	default:
		printEnsemble(dec)
	}
}

func handleSignals() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch)
	go func() {
		for s := range ch {
			if s != syscall.SIGURG {
				log.Printf("Received signal %s\n", s)
			}
			switch s {
			case syscall.SIGABRT, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM:
				cancel()
				return
			}
		}
	}()
}

// feed reads 32 byte FIBs from r until EOF and hands the CRC valid ones to
// the decoder
func feed(dec *astidab.FICDecoder, r io.Reader) (err error) {
	fib := make([]byte, fibSize)
	var corrupted int
	for {
		// Check ctx error
		if err = ctx.Err(); err != nil {
			return nil
		}

		if _, err = io.ReadFull(r, fib); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				if corrupted > 0 {
					log.Printf("%d FIBs dropped on CRC\n", corrupted)
				}
				return nil
			}
			return fmt.Errorf("astidab: reading FIB failed: %w", err)
		}
		if !astidab.FIBCRCValid(fib) {
			corrupted++
			continue
		}
		if err = dec.ProcessFIB(fib); err != nil {
			return fmt.Errorf("astidab: processing FIB failed: %w", err)
		}
	}
}

// Ensemble represents the acquired ensemble
type Ensemble struct {
	ID       uint16     `json:"id,omitempty"`
	ECC      uint8      `json:"ecc,omitempty"`
	Label    string     `json:"label,omitempty"`
	Services []*Service `json:"services,omitempty"`
}

// Service represents a confirmed service
type Service struct {
	ID          uint32       `json:"id"`
	Label       string       `json:"label,omitempty"`
	Language    uint8        `json:"language,omitempty"`
	ProgramType uint8        `json:"program_type,omitempty"`
	Components  []*Component `json:"components,omitempty"`
}

// Component represents a service component and the subchannel it references
type Component struct {
	Number        int    `json:"number"`
	TransportMode string `json:"transport_mode"`
	SubchannelID  int    `json:"subchannel_id"`
	StartAddress  int    `json:"start_address,omitempty"`
	Length        int    `json:"length,omitempty"`
}

func newEnsemble(dec *astidab.FICDecoder) (e *Ensemble) {
	e = &Ensemble{
		ID:    dec.EnsembleID(),
		ECC:   dec.EnsembleECC(),
		Label: dec.EnsembleLabel().String(),
	}
	for _, s := range dec.Services() {
		v := &Service{
			ID:          s.ServiceID,
			Label:       s.Label.String(),
			Language:    s.Language,
			ProgramType: s.ProgramType,
		}
		for _, c := range dec.Components(s.ServiceID) {
			sub := dec.Subchannel(c.SubchannelID)
			v.Components = append(v.Components, &Component{
				Number:        c.ComponentNumber,
				TransportMode: c.TransportMode.String(),
				SubchannelID:  c.SubchannelID,
				StartAddress:  sub.StartAddress,
				Length:        sub.Length,
			})
		}
		e.Services = append(e.Services, v)
	}
	return
}

func printEnsemble(dec *astidab.FICDecoder) {
	e := newEnsemble(dec)
	fmt.Printf("Ensemble 0x%04x (%s):\n", e.ID, e.Label)
	for _, s := range e.Services {
		fmt.Printf("* [0x%04x] %s\n", s.ID, s.Label)
		for _, c := range s.Components {
			fmt.Printf("    %d: %s on subchannel %d (start %d, %d CUs)\n", c.Number, c.TransportMode, c.SubchannelID, c.StartAddress, c.Length)
		}
	}
}

// eventLogger logs model notifications as they fire
type eventLogger struct{}

func (eventLogger) OnNewEnsemble(id uint16) { log.Printf("ensemble: 0x%04x\n", id) }
func (eventLogger) OnServiceDetected(serviceID uint32) {
	log.Printf("service detected: 0x%04x\n", serviceID)
}
func (eventLogger) OnEnsembleLabel(label astidab.DabLabel) {
	log.Printf("ensemble label: %s\n", label)
}
func (eventLogger) OnServiceLabel(serviceID uint32, label astidab.DabLabel) {
	log.Printf("service 0x%04x label: %s\n", serviceID, label)
}
func (eventLogger) OnDateTime(t astidab.DabTime) {
	log.Printf("date and time: %s\n", t.Time().Format("2006-01-02 15:04:05 -07:00"))
}
