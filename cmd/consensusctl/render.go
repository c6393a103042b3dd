package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"consensus-backend/internal/analyses"
	"consensus-backend/internal/consensus"
	"consensus-backend/internal/llm"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func validateFormat(format string) error {
	switch format {
	case formatText, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unknown format %q (use text, json, or yaml)", format)
	}
}

func writeJob(w io.Writer, format string, job analyses.Job) error {
	switch format {
	case formatJSON:
		return writeJSON(w, job)
	case formatYAML:
		return writeYAML(w, job)
	default:
		printJobText(w, job)
		return nil
	}
}

func writeFrameworks(w io.Writer, format string, frameworks []llm.Framework) error {
	type item struct {
		ID       string   `json:"id"`
		Name     string   `json:"name"`
		Sections []string `json:"sections"`
	}
	items := make([]item, 0, len(frameworks))
	for _, fw := range frameworks {
		sections := fw.Sections
		if sections == nil {
			sections = []string{}
		}
		items = append(items, item{ID: fw.ID, Name: fw.Name, Sections: sections})
	}

	switch format {
	case formatJSON:
		return writeJSON(w, items)
	case formatYAML:
		return writeYAML(w, items)
	}
	bold := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)
	for _, it := range items {
		_, _ = bold.Fprintf(w, "%-24s", it.ID)
		fmt.Fprint(w, it.Name)
		if len(it.Sections) > 0 {
			_, _ = dim.Fprintf(w, "  (%s)", strings.Join(it.Sections, ", "))
		}
		fmt.Fprintln(w)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeYAML round-trips v through JSON so the YAML keys match the API's
// JSON field names.
func writeYAML(w io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

func printJobText(w io.Writer, job analyses.Job) {
	bold := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	_, _ = bold.Fprintf(w, "ANALYSIS %s ", job.ID)
	_, _ = dim.Fprintf(w, "[%s]\n", job.Status)
	fmt.Fprintln(w, job.BusinessInput)
	fmt.Fprintln(w)

	if job.Error != "" {
		_, _ = red.Fprintf(w, "Error: %s\n\n", job.Error)
	}

	printConfidenceBar(w, "Overall", job.ConfidenceScore)
	if len(job.Consensus.ModelsUsed) > 0 {
		_, _ = dim.Fprintf(w, "  Models used: %s\n", strings.Join(job.Consensus.ModelsUsed, ", "))
	}
	fmt.Fprintln(w)

	for _, fwID := range job.Frameworks {
		fc, ok := job.FrameworkConsensus[fwID]
		if !ok {
			continue
		}
		name := fwID
		if fw, ok := llm.LookupFramework(fwID); ok {
			name = fw.Name
		}
		_, _ = bold.Fprintln(w, strings.ToUpper(name))
		printConfidenceBar(w, fc.AgreementLevel, fc.ConsensusScore)

		results := job.Results[fwID]
		for _, provider := range job.Providers {
			r, ok := results[provider]
			if !ok {
				continue
			}
			if r.Error != "" {
				_, _ = red.Fprintf(w, "  %-10s failed: %s\n", provider, r.Error)
				continue
			}
			fmt.Fprintf(w, "  %-10s %.2f", provider, r.ConfidenceScore)
			_, _ = dim.Fprintf(w, "  weight %.2f  %.1fs\n", fc.ModelWeights[provider], r.ProcessingTime)
		}
		for _, c := range fc.ConflictingInsights {
			_, _ = yellow.Fprintf(w, "  ! %s (%s)\n", c.Description, c.Severity)
		}
		printMerged(w, fc)
		fmt.Fprintln(w)
	}
}

func printMerged(w io.Writer, fc consensus.FrameworkConsensus) {
	if len(fc.MergedAnalysis) == 0 {
		return
	}
	keys := make([]string, 0, len(fc.MergedAnalysis))
	for k := range fc.MergedAnalysis {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := fc.MergedAnalysis[k].(type) {
		case []any:
			fmt.Fprintf(w, "  %s:\n", k)
			for _, entry := range v {
				fmt.Fprintf(w, "    - %v\n", entry)
			}
		case string:
			fmt.Fprintf(w, "  %s: %s\n", k, v)
		case bool:
			// raw_response marker
		default:
			fmt.Fprintf(w, "  %s: %v\n", k, v)
		}
	}
}

func printConfidenceBar(w io.Writer, label string, score float64) {
	const barWidth = 24
	pct := int(score*100 + 0.5)
	filled := pct * barWidth / 100
	if filled > barWidth {
		filled = barWidth
	}
	if filled < 0 {
		filled = 0
	}

	var barColor *color.Color
	switch {
	case pct >= 80:
		barColor = color.New(color.FgGreen)
	case pct >= 40:
		barColor = color.New(color.FgYellow)
	default:
		barColor = color.New(color.FgRed)
	}

	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	fmt.Fprintf(w, "  Confidence: %3d%% ", pct)
	_, _ = barColor.Fprint(w, bar)
	dim := color.New(color.FgHiBlack)
	_, _ = dim.Fprintf(w, " (%s)\n", label)
}
