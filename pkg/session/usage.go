package session

import (
	"strconv"

	providertypes "corridorbots/pkg/provider/types"
)

const (
	UsageInputTokensKey     = "usage_input_tokens"
	UsageOutputTokensKey    = "usage_output_tokens"
	UsageTotalTokensKey     = "usage_total_tokens"
	UsageReasoningTokensKey = "usage_reasoning_tokens"
	UsageCacheReadTokensKey = "usage_cache_read_tokens"
)

// usagePayload flattens usage into event payload fields. Nil usage adds nothing.
func usagePayload(payload map[string]string, usage *providertypes.TokenUsage) map[string]string {
	if usage == nil || usage.IsZero() {
		return payload
	}
	if payload == nil {
		payload = map[string]string{}
	}

	payload[UsageInputTokensKey] = strconv.FormatInt(usage.InputTokens, 10)
	payload[UsageOutputTokensKey] = strconv.FormatInt(usage.OutputTokens, 10)
	payload[UsageTotalTokensKey] = strconv.FormatInt(usage.TotalTokens, 10)
	payload[UsageReasoningTokensKey] = strconv.FormatInt(usage.ReasoningTokens, 10)
	payload[UsageCacheReadTokensKey] = strconv.FormatInt(usage.CacheReadTokens, 10)
	return payload
}

// UsageFromPayload reads usage fields written by usagePayload.
func UsageFromPayload(payload map[string]string) (providertypes.TokenUsage, bool) {
	if payload == nil {
		return providertypes.TokenUsage{}, false
	}
	if _, ok := payload[UsageTotalTokensKey]; !ok {
		return providertypes.TokenUsage{}, false
	}

	parse := func(key string) int64 {
		value, err := strconv.ParseInt(payload[key], 10, 64)
		if err != nil {
			return 0
		}
		return value
	}

	return providertypes.TokenUsage{
		InputTokens:     parse(UsageInputTokensKey),
		OutputTokens:    parse(UsageOutputTokensKey),
		TotalTokens:     parse(UsageTotalTokensKey),
		ReasoningTokens: parse(UsageReasoningTokensKey),
		CacheReadTokens: parse(UsageCacheReadTokensKey),
	}, true
}
