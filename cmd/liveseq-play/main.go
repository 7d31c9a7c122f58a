package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/outofphase/liveseq"
	"github.com/outofphase/liveseq/cmd"
	"github.com/outofphase/liveseq/live"
	"github.com/outofphase/liveseq/midicc"
	"github.com/outofphase/liveseq/oto"
	"github.com/outofphase/liveseq/output"
	"github.com/outofphase/liveseq/refsynth"
	"github.com/outofphase/liveseq/remote"
	"github.com/outofphase/liveseq/tui"
	"github.com/outofphase/liveseq/version"
)

type options struct {
	config       string
	session      string
	http         string
	midiInput    string
	midiBindings string
	noTUI        bool
	noAudio      bool
	duration     time.Duration
	logLevel     string
	logFile      string
}

const (
	uiInterval     = 100 * time.Millisecond
	statusInterval = 500 * time.Millisecond
	nullTick       = 10 * time.Millisecond
	lastWordsWait  = 200 * time.Millisecond
)

func main() {
	var o options
	flag.StringVar(&o.config, "config", "", "YAML file with the session settings (sample rate, buffering, status template).")
	flag.StringVar(&o.http, "http", "", "Serve the remote control API on this address, e.g. localhost:8080.")
	flag.StringVar(&o.midiInput, "midi-input", "", "Listen to the first MIDI input whose name starts with this. Empty takes the first input.")
	flag.StringVar(&o.midiBindings, "midi-bindings", "", "YAML file mapping MIDI controllers to track parameters. MIDI is off without it.")
	listMIDI := flag.Bool("list-midi", false, "List the MIDI inputs and exit.")
	flag.BoolVar(&o.noTUI, "no-tui", false, "Print a status line instead of running the terminal UI.")
	flag.BoolVar(&o.noAudio, "no-audio", false, "Render into a simulated device instead of the sound card.")
	flag.DurationVar(&o.duration, "duration", 0, "Stop after this long. 0 plays until interrupted.")
	flag.StringVar(&o.logLevel, "log-level", "info", "Log level: debug, info, warn or error.")
	flag.StringVar(&o.logFile, "log-file", "", "Write the log to this file while the terminal UI runs. By default the log is discarded then.")
	versionFlag := flag.Bool("v", false, "Print version.")
	help := flag.Bool("h", false, "Show help.")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.VersionOrHash)
		os.Exit(0)
	}
	if *help || flag.NArg() > 1 {
		flag.Usage()
		os.Exit(0)
	}
	if *listMIDI {
		ins, err := cmd.MIDIInputs()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		for _, in := range ins {
			fmt.Println(in)
		}
		os.Exit(0)
	}
	o.session = flag.Arg(0)
	if err := run(o); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(o options) error {
	log := logrus.New()
	level, err := logrus.ParseLevel(o.logLevel)
	if err != nil {
		return fmt.Errorf("bad -log-level: %w", err)
	}
	log.SetLevel(level)

	config, err := loadConfig(o.config)
	if err != nil {
		return err
	}
	session, err := loadSession(o.session)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if o.duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, o.duration)
		defer cancel()
	}

	var dest liveseq.Destination
	if o.noAudio {
		null := output.NewNullDestination(config.SampleRate, config.BufferFrames())
		go null.Run(ctx, nullTick)
		dest = null
	} else {
		otoDest, err := oto.NewDestination(config.SampleRate, config.BufferFrames())
		if err != nil {
			return fmt.Errorf("could not open audio device: %w", err)
		}
		dest = otoDest
	}

	engine := refsynth.NewEngine(session, refsynth.Config{
		SampleRate:   config.SampleRate,
		EnvelopeRate: config.EnvelopeRate,
		ScanningGap:  config.ScanningGap,
		Logger:       log,
	})
	player, err := live.NewPlayer(live.PlayerConfig{
		Engine:      engine,
		Document:    session,
		Destination: dest,
		Config:      config,
		Logger:      log,
	})
	if err != nil {
		dest.Close()
		return err
	}
	defer player.Dispose()
	ctrl := live.NewController(player, session, nil)
	for _, r := range session.StartRequests() {
		ctrl.Stage(r.Track, r.Command)
	}
	ctrl.Commit()

	if o.http != "" {
		srv := remote.NewServer(ctrl, log)
		go func() {
			if err := srv.ListenAndServe(ctx, o.http); err != nil {
				log.WithField("err", err).Error("remote control stopped")
			}
		}()
	}
	if o.midiBindings != "" {
		stop, err := listenMIDI(o, ctrl, log)
		if err != nil {
			return err
		}
		defer stop()
	}

	if err := player.Start(); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"session": session.Name(), "tracks": len(session.Tracks())}).Info("playing")
	if o.noTUI {
		err = runHeadless(ctx, ctrl, player, config, log)
	} else {
		err = runTUI(ctx, ctrl, player, o.logFile, log)
	}
	if err != nil {
		return err
	}
	drainErr := player.Drain()
	logLastWords(player.Broker(), log)
	if drainErr != nil {
		return drainErr
	}
	return player.Err()
}

// logLastWords logs what the player sent while stopping, until the broker
// stays quiet for lastWordsWait or the StoppedMsg arrives.
func logLastWords(b *live.Broker, log logrus.FieldLogger) {
	for {
		msg, ok := live.TimeoutReceive[any](b.ToUI, lastWordsWait)
		if !ok {
			return
		}
		if stopped, ok := msg.(live.StoppedMsg); ok {
			if stopped.Err != nil {
				log.WithError(stopped.Err).Error("player stopped")
			}
			return
		}
		logMessage(log, msg)
	}
}

func logMessage(log logrus.FieldLogger, msg any) {
	switch msg := msg.(type) {
	case live.Alert:
		log.WithField("alert", msg.Name).Warn(msg.Message)
	case *liveseq.ArgumentError:
		log.WithField("track", msg.Track).Warn(msg.Error())
	}
}

func loadConfig(filename string) (live.Config, error) {
	if filename == "" {
		return live.DefaultConfig(), nil
	}
	f, err := os.Open(filename)
	if err != nil {
		return live.Config{}, fmt.Errorf("could not open config: %w", err)
	}
	defer f.Close()
	c, err := live.LoadConfig(f)
	if err != nil {
		return live.Config{}, fmt.Errorf("could not load config %v: %w", filename, err)
	}
	return c, nil
}

func loadSession(filename string) (*refsynth.Session, error) {
	if filename == "" {
		return refsynth.DefaultSession(), nil
	}
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("could not open session: %w", err)
	}
	defer f.Close()
	s, err := refsynth.LoadSession(f)
	if err != nil {
		return nil, fmt.Errorf("could not load session %v: %w", filename, err)
	}
	return s, nil
}

func listenMIDI(o options, ctrl *live.Controller, log logrus.FieldLogger) (func(), error) {
	f, err := os.Open(o.midiBindings)
	if err != nil {
		return nil, fmt.Errorf("could not open MIDI bindings: %w", err)
	}
	defer f.Close()
	bindings, err := midicc.LoadBindings(f)
	if err != nil {
		return nil, err
	}
	binder, err := midicc.NewBinder(ctrl, bindings, log)
	if err != nil {
		return nil, err
	}
	return cmd.ListenMIDI(o.midiInput, binder)
}

// runTUI runs the terminal UI until the user quits or ctx is done. The log
// goes to logFile meanwhile, so it does not garble the screen.
func runTUI(ctx context.Context, ctrl *live.Controller, player *live.Player, logFile string, log *logrus.Logger) error {
	out := io.Discard
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("could not open log file: %w", err)
		}
		defer f.Close()
		out = f
	}
	log.SetOutput(out)
	defer log.SetOutput(os.Stderr)
	p := tea.NewProgram(tui.New(ctrl, player.Broker(), uiInterval), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("terminal UI failed: %w", err)
	}
	return nil
}

// runHeadless prints a status line periodically and logs the messages of
// the broker until ctx is done or the player stops.
func runHeadless(ctx context.Context, ctrl *live.Controller, player *live.Player, config live.Config, log logrus.FieldLogger) error {
	formatter, err := live.NewStatusFormatter(config.StatusTemplate)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := formatter.Format(os.Stdout, ctrl.Snapshot()); err != nil {
				return err
			}
			fmt.Println()
		case msg := <-player.Broker().ToUI:
			if stopped, ok := msg.(live.StoppedMsg); ok {
				return stopped.Err
			}
			logMessage(log, msg)
		}
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "liveseq-play plays a session live and takes sequencing commands while it plays.\nUsage: %s [flags] [session.yml]\n", os.Args[0])
	flag.PrintDefaults()
}
