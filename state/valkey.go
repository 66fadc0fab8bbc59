package state

import (
	"context"
	"fmt"
	"strconv"

	"github.com/valkey-io/valkey-go"
)

const valkeyKeyPrefix = "textgen:provider:"

// ValkeyStore persists provider stats as one hash per provider, so sticky
// disables survive process restarts.
type ValkeyStore struct {
	client valkey.Client
}

func NewValkeyStore(client valkey.Client) *ValkeyStore {
	return &ValkeyStore{client: client}
}

func (v *ValkeyStore) GetProviderStats(ctx context.Context, key string) (*Stats, error) {
	response := v.client.Do(ctx, v.client.B().Hgetall().Key(valkeyKeyPrefix+key).Build())
	fields, err := response.AsStrMap()
	if err != nil {
		return nil, fmt.Errorf("failed to read provider stats: %v", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	stats := &Stats{
		Status:        fields["status"],
		LastResetDate: fields["last_reset_date"],
	}
	if raw, exists := fields["calls_today"]; exists {
		callsToday, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("malformed calls_today for %s: %v", key, err)
		}
		stats.CallsToday = callsToday
	}
	return stats, nil
}

func (v *ValkeyStore) UpdateProviderStats(ctx context.Context, key string, patch Patch) error {
	fields := make(map[string]string, 3)
	if patch.Status != nil {
		fields["status"] = *patch.Status
	}
	if patch.CallsToday != nil {
		fields["calls_today"] = strconv.Itoa(*patch.CallsToday)
	}
	if patch.LastResetDate != nil {
		fields["last_reset_date"] = *patch.LastResetDate
	}
	if len(fields) == 0 {
		return nil
	}

	command := v.client.B().Hset().Key(valkeyKeyPrefix + key).FieldValue()
	for field, value := range fields {
		command = command.FieldValue(field, value)
	}
	return v.client.Do(ctx, command.Build()).Error()
}
