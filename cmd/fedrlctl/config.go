package main

import (
	"encoding/json"
	"fmt"
	"os"

	fedapi "fedrl/pkg/fedrl"
)

func loadRunRequestFromConfig(path string) (fedapi.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fedapi.RunRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fedapi.RunRequest{}, err
	}

	var req fedapi.RunRequest
	if v, ok := asString(raw["strategy"]); ok {
		req.Strategy = v
	}
	if v, ok := asInt(raw["agents"]); ok {
		req.Agents = v
	}
	if v, ok := asInt(raw["iterations"]); ok {
		req.Iterations = v
	}
	if v, ok := asInt(raw["interval"]); ok {
		req.Interval = v
	}
	if v, ok := asFloat64(raw["quantile"]); ok {
		req.Quantile = v
	}
	if v, ok := asFloat64(raw["temperature"]); ok {
		req.Temperature = v
	}
	if v, ok := asFloat64(raw["temperature_decay"]); ok {
		req.TemperatureDecay = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	if v, ok := asInt(raw["chain_length"]); ok {
		req.ChainLength = v
	}
	if v, ok := asFloat64(raw["slip"]); ok {
		req.Slip = v
	}
	if v, ok := asInt(raw["episodes_per_iteration"]); ok {
		req.EpisodesPerIteration = v
	}
	if v, ok := asInt(raw["max_steps_per_episode"]); ok {
		req.MaxStepsPerEpisode = v
	}
	if v, ok := asFloat64(raw["learning_rate"]); ok {
		req.LearningRate = v
	}
	if v, ok := asFloat64(raw["gamma"]); ok {
		req.Gamma = v
	}
	if v, ok := asFloat64(raw["epsilon"]); ok {
		req.Epsilon = v
	}
	if v, ok := asFloat64(raw["entropy_coeff"]); ok {
		req.EntropyCoeff = v
	}
	if v, ok := asBool(raw["explore"]); ok {
		req.Explore = v
	}
	if v, ok := asFloat64(raw["resample_probability"]); ok {
		req.ResampleProbability = v
	}

	return req, nil
}

func loadOrDefaultRunRequest(configPath string) (fedapi.RunRequest, error) {
	if configPath == "" {
		return fedapi.RunRequest{}, nil
	}
	req, err := loadRunRequestFromConfig(configPath)
	if err != nil {
		return fedapi.RunRequest{}, fmt.Errorf("load config: %w", err)
	}
	return req, nil
}

func overrideFromFlags(req *fedapi.RunRequest, set map[string]bool, flagValue map[string]any) {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "strategy":
			req.Strategy = v.(string)
		case "agents":
			req.Agents = v.(int)
		case "iterations":
			req.Iterations = v.(int)
		case "interval":
			req.Interval = v.(int)
		case "quantile":
			req.Quantile = v.(float64)
		case "temperature":
			req.Temperature = v.(float64)
		case "temperature-decay":
			req.TemperatureDecay = v.(float64)
		case "seed":
			req.Seed = v.(int64)
		case "chain-length":
			req.ChainLength = v.(int)
		case "slip":
			req.Slip = v.(float64)
		case "episodes":
			req.EpisodesPerIteration = v.(int)
		case "max-steps":
			req.MaxStepsPerEpisode = v.(int)
		case "lr":
			req.LearningRate = v.(float64)
		case "gamma":
			req.Gamma = v.(float64)
		case "epsilon":
			req.Epsilon = v.(float64)
		case "entropy-coeff":
			req.EntropyCoeff = v.(float64)
		case "explore":
			req.Explore = v.(bool)
		case "resample-probability":
			req.ResampleProbability = v.(float64)
		}
	}
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}
