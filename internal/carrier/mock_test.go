package carrier

import (
	"testing"

	"github.com/Newton-b/shipsmart-sub002/internal/core/domain"
)

func TestMockResponse_Deterministic(t *testing.T) {
	cfg := &domain.CarrierConfig{CarrierCode: "UPS", CarrierName: "UPS"}

	first := mockResponse(cfg, "1Z999AA10123456784")
	second := mockResponse(cfg, "1Z999AA10123456784")

	if len(first.Events) != len(second.Events) {
		t.Fatalf("event counts differ: %d vs %d", len(first.Events), len(second.Events))
	}
	for i := range first.Events {
		a, b := first.Events[i], second.Events[i]
		if a.Status != b.Status || !a.Timestamp.Equal(b.Timestamp) || a.ExternalEventID != b.ExternalEventID {
			t.Errorf("event %d differs: %+v vs %+v", i, a, b)
		}
	}
}

func TestMockResponse_DifferentNumbersDiffer(t *testing.T) {
	cfg := &domain.CarrierConfig{CarrierCode: "FEDEX", CarrierName: "FedEx"}

	a := mockResponse(cfg, "123456789012")
	b := mockResponse(cfg, "944858293847")

	if len(a.Events) == len(b.Events) && a.Events[0].Timestamp.Equal(b.Events[0].Timestamp) {
		t.Errorf("distinct numbers produced identical timelines")
	}
}

func TestMockResponse_SummaryConsistency(t *testing.T) {
	cfg := &domain.CarrierConfig{CarrierCode: "MAERSK", CarrierName: "Maersk"}

	numbers := []string{"MSKU1234567", "HLCU7654321", "123456789", "MSCU0000001"}
	for _, num := range numbers {
		resp := mockResponse(cfg, num)

		if len(resp.Events) < 2 || len(resp.Events) > 5 {
			t.Errorf("%s: %d events outside progression bounds", num, len(resp.Events))
		}
		for i := 1; i < len(resp.Events); i++ {
			if resp.Events[i].Timestamp.After(resp.Events[i-1].Timestamp) {
				t.Errorf("%s: events not sorted newest first", num)
			}
		}
		if resp.CurrentStatus != resp.Events[0].Status {
			t.Errorf("%s: current status %s does not match newest event %s", num, resp.CurrentStatus, resp.Events[0].Status)
		}
		if resp.IsDelivered != (resp.CurrentStatus == domain.StatusDelivered) {
			t.Errorf("%s: delivered flag inconsistent with status %s", num, resp.CurrentStatus)
		}
		if resp.IsDelivered && resp.ActualDelivery == nil {
			t.Errorf("%s: delivered without actual delivery timestamp", num)
		}
		if !resp.IsDelivered && resp.EstimatedDelivery == nil {
			t.Errorf("%s: undelivered without estimated delivery", num)
		}
	}
}
