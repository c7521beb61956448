// Package fakescore implements the deterministic, IO-free heuristic that
// flags mod archives likely to be fake or low-effort, following the rule
// table applied identically by the remote catalog's own moderation pass.
package fakescore

import (
	"strings"

	"github.com/teyk0o/simsforge/internal/archive"
)

// Meta is the subset of a mod's catalog metadata the evaluator considers.
// Fields beyond these are presentation-only and irrelevant to scoring.
type Meta struct {
	Title              string
	DownloadCount      int
	IsTrending         bool
	CreatorWarnedRatio float64
}

// Result is the outcome of scoring one archive against its metadata.
type Result struct {
	Score      int
	Reasons    []string
	Suspicious bool
}

var suspiciousTitleKeywords = []string{
	"patreon", "early access", "support me", "donate", "exclusive", "premium", "vip only",
}

var informationalOnlyExtensions = map[string]bool{
	".txt": true, ".html": true, ".htm": true, ".url": true,
	".lnk": true, ".md": true, ".pdf": true,
}

// suspiciousThreshold is the score at or above which the Installer offers
// the user a {install, cancel, report} decision. The server-side warning
// pass uses the same rule table with a higher threshold; that logic is not
// part of this evaluator.
const suspiciousThreshold = 30

// warnedRatioThreshold gates the "creator has high warned ratio" rule.
const warnedRatioThreshold = 0.7

// Score applies the rule table to meta and insp, clamping at 100.
func Score(meta Meta, insp *archive.Inspection) Result {
	var res Result

	if titleHasSuspiciousKeyword(meta.Title) {
		res.add(25, "suspicious title keywords")
	}

	if insp != nil && !insp.HasPackageFiles && !insp.HasScriptFiles {
		res.add(50, "no mod files detected")
	}

	if insp != nil && allInformationalOnly(insp.FileList) {
		res.add(20, "informational-only contents")
	}

	if meta.DownloadCount < 100 && meta.IsTrending {
		res.add(15, "low downloads but trending")
	}

	if meta.CreatorWarnedRatio > warnedRatioThreshold {
		res.add(10, "creator has high warned ratio")
	}

	if res.Score > 100 {
		res.Score = 100
	}
	res.Suspicious = res.Score >= suspiciousThreshold

	return res
}

func (r *Result) add(delta int, reason string) {
	r.Score += delta
	r.Reasons = append(r.Reasons, reason)
}

func titleHasSuspiciousKeyword(title string) bool {
	lower := strings.ToLower(title)
	for _, kw := range suspiciousTitleKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// allInformationalOnly reports whether every path in files has an extension
// in the informational-only set, or the list is empty.
func allInformationalOnly(files []string) bool {
	if len(files) == 0 {
		return true
	}
	for _, f := range files {
		ext := extLower(f)
		if !informationalOnlyExtensions[ext] {
			return false
		}
	}
	return true
}

func extLower(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i:])
}
