package chain

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"

	"go.uber.org/zap"
)

type moveCallResponse struct {
	TxBytes string `json:"txBytes"`
}

var executeOptions = map[string]any{
	"showEffects":       true,
	"showEvents":        true,
	"showObjectChanges": true,
}

// SubmitMutation builds the Move call on the node, signs it and executes it,
// waiting for local execution. The node's result is returned as-is apart
// from splitting out the digest, events, effects and object changes.
func (c *Client) SubmitMutation(ctx context.Context, call MoveCall) (MutationResult, error) {
	if c.signer == nil {
		return MutationResult{}, ErrNoSigner
	}
	sender := c.signer.Address()

	var built moveCallResponse
	params := []any{
		sender,
		call.Package,
		call.Module,
		call.Function,
		[]any{},
		call.Arguments,
		nil,
		strconv.FormatUint(c.gasBudget, 10),
	}
	if err := c.call(ctx, "unsafe_moveCall", params, &built); err != nil {
		return MutationResult{}, err
	}
	txBytes, err := base64.StdEncoding.DecodeString(built.TxBytes)
	if err != nil {
		return MutationResult{}, fmt.Errorf("decode transaction bytes: %w", err)
	}

	signature, err := c.signer.SignTransaction(ctx, txBytes)
	if err != nil {
		return MutationResult{}, fmt.Errorf("sign transaction: %w", err)
	}

	c.logger.Debug("executing move call",
		zap.String("target", call.Target()),
		zap.String("sender", sender))

	var raw map[string]any
	execParams := []any{built.TxBytes, []string{signature}, executeOptions, "WaitForLocalExecution"}
	if err := c.call(ctx, "sui_executeTransactionBlock", execParams, &raw); err != nil {
		return MutationResult{}, err
	}
	return ParseMutationResult(raw), nil
}

// ParseMutationResult splits a raw execution result into its parts. Events
// may sit at the top level or under effects.
func ParseMutationResult(raw map[string]any) MutationResult {
	res := MutationResult{Raw: raw}
	if raw == nil {
		return res
	}
	res.Digest = firstString(raw, "digest", "txDigest")
	res.Effects, _ = raw["effects"].(map[string]any)
	res.Events = mapSlice(raw["events"])
	if len(res.Events) == 0 && res.Effects != nil {
		res.Events = mapSlice(res.Effects["events"])
	}
	res.ObjectChanges = mapSlice(raw["objectChanges"])
	return res
}
