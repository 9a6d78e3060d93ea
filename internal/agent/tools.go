package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/xuegao65/agent-back/internal/llm"
)

// Actions is the token operations the agent may trigger.
type Actions interface {
	SendTokensByAddress(ctx context.Context, to, amount, tokenAddress string) string
	SendTokensBySymbol(ctx context.Context, to, amount, symbol string) string
	SwapTokens(ctx context.Context, fromSymbol, toSymbol, amount string) string
}

// Tool is one capability offered to the model. Call always returns text for
// the model, never an error.
type Tool struct {
	Name        string
	Description string
	Params      []Param
	run         func(ctx context.Context, args map[string]string) string
}

// Param is a required string argument of a Tool.
type Param struct {
	Name        string
	Description string
}

// Spec describes the tool to the LLM provider.
func (t Tool) Spec() llm.ToolSpec {
	props := make(map[string]interface{}, len(t.Params))
	required := make([]string, 0, len(t.Params))
	for _, p := range t.Params {
		props[p.Name] = map[string]interface{}{
			"type":        "string",
			"description": p.Description,
		}
		required = append(required, p.Name)
	}
	return llm.ToolSpec{
		Name:        t.Name,
		Description: t.Description,
		Properties:  props,
		Required:    required,
	}
}

// Call decodes the model's JSON arguments and runs the tool.
func (t Tool) Call(ctx context.Context, rawArgs string) string {
	args, err := decodeArgs(rawArgs)
	if err != nil {
		return "Invalid arguments."
	}
	for _, p := range t.Params {
		if args[p.Name] == "" {
			return fmt.Sprintf("Missing argument: %s.", p.Name)
		}
	}
	return t.run(ctx, args)
}

// decodeArgs accepts string, number and boolean values and renders each as a
// string. Models sometimes send amounts as JSON numbers.
func decodeArgs(raw string) (map[string]string, error) {
	if raw == "" {
		raw = "{}"
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var values map[string]interface{}
	if err := dec.Decode(&values); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(values))
	for k, v := range values {
		switch val := v.(type) {
		case string:
			out[k] = val
		case json.Number:
			out[k] = val.String()
		case bool:
			out[k] = fmt.Sprint(val)
		}
	}
	return out, nil
}

// Tools returns the closed set of tools backed by actions.
func Tools(actions Actions) []Tool {
	return []Tool{
		{
			Name:        "send_tokens_by_address",
			Description: "Send tokens to a wallet, identifying the token by its mint address.",
			Params: []Param{
				{Name: "to_address", Description: "Recipient wallet address (base58)"},
				{Name: "amount", Description: "Amount to send as a decimal string, e.g. 0.0001"},
				{Name: "token_address", Description: "Mint address of the token"},
			},
			run: func(ctx context.Context, a map[string]string) string {
				return actions.SendTokensByAddress(ctx, a["to_address"], a["amount"], a["token_address"])
			},
		},
		{
			Name:        "send_tokens_by_symbol",
			Description: "Send tokens to a wallet, identifying the token by its symbol such as SOL or USDC.",
			Params: []Param{
				{Name: "to_address", Description: "Recipient wallet address (base58)"},
				{Name: "amount", Description: "Amount to send as a decimal string, e.g. 0.0001"},
				{Name: "token_symbol", Description: "Token symbol"},
			},
			run: func(ctx context.Context, a map[string]string) string {
				return actions.SendTokensBySymbol(ctx, a["to_address"], a["amount"], a["token_symbol"])
			},
		},
		{
			Name:        "swap_tokens",
			Description: "Swap an amount of one token for another, both identified by symbol.",
			Params: []Param{
				{Name: "from_symbol", Description: "Symbol of the token to sell"},
				{Name: "to_symbol", Description: "Symbol of the token to buy"},
				{Name: "amount", Description: "Amount of from_symbol as a decimal string"},
			},
			run: func(ctx context.Context, a map[string]string) string {
				return actions.SwapTokens(ctx, a["from_symbol"], a["to_symbol"], a["amount"])
			},
		},
	}
}
