package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/konsulin-care/focus/internal/config"
	logger "github.com/konsulin-care/focus/internal/logging"
	"github.com/konsulin-care/focus/internal/metrics"
	"github.com/konsulin-care/focus/internal/models"
	"github.com/konsulin-care/focus/internal/services"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	scoreEventsPath string
	scoreNormsPath  string
	scoreAge        int
	scoreGender     string

	scoreCmd = &cobra.Command{
		Use:   "score",
		Short: "Reconstruct and score an exported event log",
		Long: `score replays an exported event log, either a TestComplete object or a
bare array of trial events, and prints the scored session as JSON.`,
		RunE: runScore,
	}
)

func init() {
	scoreCmd.Flags().StringVar(&scoreEventsPath, "events", "", "event log JSON file, - for stdin")
	scoreCmd.Flags().StringVar(&scoreNormsPath, "norms", "", "normative YAML file (defaults to norms.path)")
	scoreCmd.Flags().IntVar(&scoreAge, "age", 0, "subject age in years")
	scoreCmd.Flags().StringVar(&scoreGender, "gender", "", "subject gender")
	_ = scoreCmd.MarkFlagRequired("events")
}

func runScore(cmd *cobra.Command, args []string) error {
	conf, err := config.Load(projectRoot)
	if err != nil {
		return err
	}
	logConf := conf.Logging
	logConf.Directory = ""
	logConf.Level = "warn"
	log, err := logger.Init(logConf)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	var in io.Reader = cmd.InOrStdin()
	if scoreEventsPath != "-" {
		f, err := os.Open(scoreEventsPath)
		if err != nil {
			return fmt.Errorf("failed to open event log: %w", err)
		}
		defer f.Close()
		in = f
	}

	normsPath := scoreNormsPath
	if normsPath == "" {
		normsPath = resolvePath(conf.Norms.Path)
	}

	scored, err := scoreEventLog(log, in, models.Subject{Age: scoreAge, Gender: scoreGender}, conf.SessionSettings(), loadNorms(log, normsPath))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(scored)
}

// scoreEventLog decodes an event log and scores it. The sequence is
// recovered from the onset events.
func scoreEventLog(log *zap.Logger, r io.Reader, subject models.Subject, settings services.SessionSettings, norms metrics.NormativeLookup) (*models.ScoredSession, error) {
	done, err := decodeEventLog(r)
	if err != nil {
		return nil, err
	}
	if len(done.Events) == 0 {
		return nil, &models.DataError{Problems: []string{"event log is empty"}}
	}

	session := &services.Session{
		ID:       "offline",
		Subject:  subject,
		Sequence: sequenceFromEvents(done.Events),
		Settings: settings,
	}
	return services.ScoreSession(log, session, done, norms), nil
}

func decodeEventLog(r io.Reader) (models.TestComplete, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return models.TestComplete{}, fmt.Errorf("failed to read event log: %w", err)
	}
	data = bytes.TrimSpace(data)

	var done models.TestComplete
	if len(data) > 0 && data[0] == '[' {
		err = json.Unmarshal(data, &done.Events)
	} else {
		err = json.Unmarshal(data, &done)
	}
	if err != nil {
		return models.TestComplete{}, fmt.Errorf("failed to decode event log: %w", err)
	}
	return done, nil
}

func sequenceFromEvents(events []models.TrialEvent) []models.StimulusType {
	var sequence []models.StimulusType
	for _, evt := range events {
		if evt.EventType != models.StimulusOnset || evt.TrialIndex < 0 {
			continue
		}
		for len(sequence) <= evt.TrialIndex {
			sequence = append(sequence, "")
		}
		sequence[evt.TrialIndex] = evt.StimulusType
	}
	return sequence
}
