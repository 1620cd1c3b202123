// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/katalvlaran/phedge/config"
	"github.com/katalvlaran/phedge/history"
	"github.com/katalvlaran/phedge/ph"
	"github.com/katalvlaran/phedge/problem"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Width(14)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#DDDDDD"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

func stateStyle(s ph.State) lipgloss.Style {
	switch s {
	case ph.StateConverged:
		return valueStyle.Foreground(lipgloss.Color("#6BCB77"))
	case ph.StateCancelled:
		return valueStyle.Foreground(lipgloss.Color("#FF6B6B"))
	default:
		return valueStyle.Foreground(lipgloss.Color("#FFD93D"))
	}
}

func line(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), valueStyle.Render(value))
}

func renderSummary(cfg config.Config, pb *problem.Problem, res ph.Result, runID string) string {
	lines := []string{
		titleStyle.Render(res.Algorithm),
		line("instance", fmt.Sprintf("%s, %d scenarios, %d stages, dim %d", cfg.Instance.Kind, pb.NScenarios, pb.NStages, pb.Dim())),
		lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render("state"), stateStyle(res.State).Render(res.State.String())),
		line("objective", fmt.Sprintf("%.6g", res.Objective)),
		line("iterations", fmt.Sprintf("%d", res.Iterations)),
		line("residuals", fmt.Sprintf("primal %.3g, dual %.3g", res.PrimalResidual, res.DualResidual)),
		line("time", fmt.Sprintf("%s (computing %s)", res.Elapsed.Round(time.Millisecond), res.Computing.Round(time.Millisecond))),
		line("solves", fmt.Sprintf("%d ok, %d failed", res.Solves, res.Failures)),
	}
	if res.MaxDelay > 0 {
		lines = append(lines, line("delay", fmt.Sprintf("max %d, mean %.2f", res.MaxDelay, res.MeanDelay)))
	}
	if runID != "" {
		lines = append(lines, line("run", runID))
	}
	if res.X != nil && pb.NStages > 0 {
		first := pb.StageToDim[0]
		row := res.X.RowView(0)[first.Lo:first.Hi]
		lines = append(lines, line("first stage", formatVector(row)))
	}

	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func renderRuns(runs []*history.Run) string {
	if len(runs) == 0 {
		return valueStyle.Render("no runs")
	}
	lines := []string{titleStyle.Render(fmt.Sprintf("%d runs", len(runs)))}
	for _, r := range runs {
		lines = append(lines, fmt.Sprintf("%s  %-20s %-15s %6d it  %12.6g  %s",
			r.StartedAt.Format("2006-01-02 15:04:05"), r.Algorithm, r.State, r.Iterations, r.Objective, r.ID))
	}

	return boxStyle.Render(strings.Join(lines, "\n"))
}

func formatVector(v []float64) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = fmt.Sprintf("%.4g", f)
	}

	return "[" + strings.Join(parts, " ") + "]"
}
