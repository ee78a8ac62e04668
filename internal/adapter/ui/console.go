package ui

import (
	"errors"
	"fmt"
	"time"

	"tgforward/internal/domain"

	"github.com/manifoldco/promptui"
	"github.com/rs/zerolog"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// ConsoleUI implements domain.ProgressReporter and domain.AuthInput. Progress
// bars render via mpb when interactive; otherwise transfers are logged as
// structured lines through the shared zerolog logger.
type ConsoleUI struct {
	progress       *mpb.Progress
	nonInteractive bool
	log            zerolog.Logger
}

func NewConsoleUI(nonInteractive bool, log zerolog.Logger) *ConsoleUI {
	var p *mpb.Progress
	if !nonInteractive {
		p = mpb.New(mpb.WithWidth(64))
	}
	return &ConsoleUI{
		progress:       p,
		nonInteractive: nonInteractive,
		log:            log,
	}
}

func (u *ConsoleUI) Start(name string, total int64) domain.ProgressTask {
	if u.nonInteractive {
		return &loggingTask{log: u.log, name: name, total: total, startTime: time.Now()}
	}

	bar := u.progress.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1}),
			decor.Counters(decor.SizeB1024(0), "% .2f / % .2f", decor.WCSyncSpace),
		),
		mpb.AppendDecorators(
			decor.OnComplete(decor.Percentage(decor.WCSyncSpace), "done"),
			decor.AverageSpeed(decor.SizeB1024(0), "% .2f", decor.WCSyncSpace),
		),
	)
	return &mpbTask{bar: bar}
}

func (u *ConsoleUI) Wait() {
	if u.nonInteractive {
		return
	}
	u.progress.Wait()
	u.progress = mpb.New(mpb.WithWidth(64))
}

// RateLimitBar renders the flood-wait "segments" countdown (spec §4.2) as its
// own bar when interactive and totalSeconds > 0; otherwise each progress
// event becomes a log line.
func (u *ConsoleUI) RateLimitBar(totalSeconds int) func(percent float64, remaining time.Duration) {
	if u.nonInteractive || totalSeconds <= 0 {
		return func(percent float64, remaining time.Duration) {
			u.log.Warn().Float64("percent", percent).Dur("remaining", remaining).Msg("flood wait progress")
		}
	}

	bar := u.progress.AddBar(100,
		mpb.PrependDecorators(decor.Name("flood wait", decor.WC{W: 11})),
		mpb.AppendDecorators(decor.Percentage(decor.WCSyncSpace)),
	)
	return func(percent float64, remaining time.Duration) {
		bar.SetCurrent(int64(percent))
		if percent >= 100 {
			bar.SetTotal(-1, true)
		}
	}
}

type mpbTask struct{ bar *mpb.Bar }

func (t *mpbTask) Increment(n int)             { t.bar.IncrBy(n) }
func (t *mpbTask) SetCurrent(current int64)    { t.bar.SetCurrent(current) }
func (t *mpbTask) Complete()                   { t.bar.SetTotal(-1, true) }
func (t *mpbTask) Abort()                      { t.bar.Abort(true) }

type loggingTask struct {
	log       zerolog.Logger
	name      string
	total     int64
	current   int64
	startTime time.Time
}

func (t *loggingTask) Increment(n int)          { t.current += int64(n) }
func (t *loggingTask) SetCurrent(current int64) { t.current = current }

func (t *loggingTask) Complete() {
	elapsed := time.Since(t.startTime).Seconds()
	var speed float64
	if elapsed > 0 {
		speed = float64(t.current) / elapsed
	}
	t.log.Info().Str("file", t.name).Int64("bytes", t.current).Float64("bytes_per_sec", speed).Msg("transfer complete")
}

func (t *loggingTask) Abort() {
	t.log.Warn().Str("file", t.name).Msg("transfer aborted")
}

// GetPhoneNumber prompts the user for their phone number.
func (u *ConsoleUI) GetPhoneNumber() (string, error) {
	prompt := promptui.Prompt{
		Label: "Enter Phone Number (international format, e.g. +39...)",
		Validate: func(input string) error {
			if len(input) < 5 {
				return errors.New("phone number too short")
			}
			return nil
		},
	}
	return prompt.Run()
}

func (u *ConsoleUI) GetCode() (string, error) {
	prompt := promptui.Prompt{
		Label: "Enter Code",
		Validate: func(input string) error {
			if len(input) == 0 {
				return errors.New("code cannot be empty")
			}
			return nil
		},
	}
	return prompt.Run()
}

func (u *ConsoleUI) GetPassword() (string, error) {
	prompt := promptui.Prompt{Label: "Enter 2FA Password", Mask: '*'}
	return prompt.Run()
}

// ConfirmPairs asks the user to confirm the resolved source/target channels
// before a forward or monitor run begins moving messages.
func (u *ConsoleUI) ConfirmPairs(pairs []domain.ChannelPair) (bool, error) {
	if u.nonInteractive {
		return true, nil
	}

	fmt.Println("The following channel pairs will be processed:")
	for _, p := range pairs {
		fmt.Printf("  %s -> %v\n", p.Source, p.Targets)
	}

	prompt := promptui.Prompt{
		Label:     "Proceed",
		IsConfirm: true,
	}
	_, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
