package catalogclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/teyk0o/simsforge/internal/external"
)

type submitReportRequest struct {
	RemoteModID int64  `json:"remoteModId"`
	MachineID   string `json:"machineId"`
	Reason      string `json:"reason"`
	FakeScore   int    `json:"fakeScore"`
	CreatorID   string `json:"creatorId,omitempty"`
	CreatorName string `json:"creatorName,omitempty"`
}

// SubmitReport implements external.FakeReportPublisher. A 409 response
// ("already reported") is treated as success, per spec.md §6.
func (c *Client) SubmitReport(ctx context.Context, report external.FakeReport) error {
	body, err := json.Marshal(submitReportRequest{
		RemoteModID: report.RemoteModID,
		MachineID:   report.MachineID,
		Reason:      string(report.Reason),
		FakeScore:   report.FakeScore,
		CreatorID:   report.CreatorID,
		CreatorName: report.CreatorName,
	})
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/reports", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return nil
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("catalog API error (status %d)", resp.StatusCode)
	}
	return nil
}

type warningStatusResponse struct {
	RemoteModID   int64  `json:"remoteModId"`
	HasWarning    bool   `json:"hasWarning"`
	ReportCount   int    `json:"reportCount"`
	IsAutoWarned  bool   `json:"isAutoWarned"`
	Reason        string `json:"reason"`
	CreatorBanned bool   `json:"creatorBanned"`
}

// BatchWarningStatus implements external.CatalogWarningService.
func (c *Client) BatchWarningStatus(ctx context.Context, remoteModIDs []int64) (map[int64]external.WarningStatus, error) {
	body, err := json.Marshal(map[string][]int64{"remoteModIds": remoteModIDs})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mods/warnings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog API error (status %d)", resp.StatusCode)
	}

	var statuses []warningStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&statuses); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	out := make(map[int64]external.WarningStatus, len(statuses))
	for _, s := range statuses {
		out[s.RemoteModID] = external.WarningStatus{
			HasWarning:    s.HasWarning,
			ReportCount:   s.ReportCount,
			IsAutoWarned:  s.IsAutoWarned,
			Reason:        s.Reason,
			CreatorBanned: s.CreatorBanned,
		}
	}
	return out, nil
}
