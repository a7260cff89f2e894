package reporting

import (
	"voiceagents/internal/calls"
	"voiceagents/internal/campaigns"
)

// QueueStatus counts the campaign queue by bucket. The buckets partition
// the queue: their sum is always the number of queued rows.
type QueueStatus struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

func (q QueueStatus) Total() int { return q.Queued + q.Processing + q.Completed + q.Failed }

// Stats are derived from the call rows on every read, independently of the
// campaign's stored counters.
type Stats struct {
	Total         int `json:"total"`
	Completed     int `json:"completed"`
	Failed        int `json:"failed"`
	NoAnswer      int `json:"no_answer"`
	Busy          int `json:"busy"`
	Interested    int `json:"interested"`
	NotInterested int `json:"not_interested"`
	Callback      int `json:"callback"`
	DoNotCall     int `json:"do_not_call"`
	Answered      int `json:"answered"`
}

// CampaignStatus is the status projection of one campaign.
type CampaignStatus struct {
	Campaign    campaigns.Campaign `json:"campaign"`
	QueueStatus QueueStatus        `json:"queue_status"`
	Stats       Stats              `json:"stats"`
}

// CallsPage is a most-recent-first page of campaign calls.
type CallsPage struct {
	CampaignID string               `json:"campaign_id"`
	Limit      int                  `json:"limit"`
	Calls      []calls.CampaignCall `json:"calls"`
}
