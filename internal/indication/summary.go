package indication

import (
	"fmt"
	"strings"
	"time"
)

// Summary is a flat view of a report for status APIs and the store.
type Summary struct {
	NodeID           string     `json:"nodeId"`
	ReceivedAt       time.Time  `json:"receivedAt"`
	RequestorID      int64      `json:"ricRequestorId"`
	InstanceID       int64      `json:"ricInstanceId"`
	RANFunctionID    int64      `json:"ranFunctionId"`
	SequenceNumber   *int64     `json:"ricIndicationSn,omitempty"`
	CollectStartTime *time.Time `json:"collectStartTime,omitempty"`
	SenderName       string     `json:"senderName,omitempty"`
	Measurements     []string   `json:"measurements,omitempty"`
	MeasDataItems    int        `json:"measDataItems"`
	Records          int        `json:"records"`
	HeaderError      string     `json:"headerError,omitempty"`
	MessageError     string     `json:"messageError,omitempty"`
}

// Summary flattens the report.
func (report *Report) Summary() Summary {
	summary := Summary{
		NodeID:         report.NodeID,
		ReceivedAt:     report.ReceivedAt,
		RequestorID:    report.RequestorID,
		InstanceID:     report.InstanceID,
		RANFunctionID:  report.RANFunctionID,
		SequenceNumber: report.SequenceNumber,
	}

	if report.HeaderView != nil {
		start := report.HeaderView.CollectStartTime
		summary.CollectStartTime = &start
		summary.SenderName = report.HeaderView.SenderName
	}
	if report.MessageView != nil {
		summary.MeasDataItems = len(report.MessageView.MeasData)
		for _, data := range report.MessageView.MeasData {
			summary.Records += len(data.Records)
		}
		for _, item := range report.MessageView.MeasInfo {
			if item.Name != "" {
				summary.Measurements = append(summary.Measurements, item.Name)
			} else {
				summary.Measurements = append(summary.Measurements, fmt.Sprintf("#%d", item.ID))
			}
		}
	}
	if report.HeaderErr != nil {
		summary.HeaderError = report.HeaderErr.Error()
	}
	if report.MessageErr != nil {
		summary.MessageError = report.MessageErr.Error()
	}
	return summary
}

func summarizeHeader(report *Report) string {
	if report.HeaderView == nil {
		return "undecoded"
	}
	view := report.HeaderView
	parts := []string{"colletStartTime=" + view.CollectStartTime.Format(time.RFC3339Nano)}
	if view.SenderName != "" {
		parts = append(parts, "senderName="+view.SenderName)
	}
	if view.VendorName != "" {
		parts = append(parts, "vendorName="+view.VendorName)
	}
	return "{" + strings.Join(parts, " ") + "}"
}

func summarizeMessage(report *Report) string {
	if report.MessageView == nil {
		return "undecoded"
	}
	summary := report.Summary()
	return fmt.Sprintf("{measData=%d records=%d measurements=%v granulPeriod=%d}",
		summary.MeasDataItems, summary.Records, summary.Measurements, report.MessageView.GranularityPeriodMs)
}
