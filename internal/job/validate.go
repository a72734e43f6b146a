package job

import (
	"fmt"
	"math"
	"path"
	"strconv"
	"strings"

	"imagegen/internal/apperrors"
	"imagegen/internal/storage"
)

// Validation limits
const (
	maxPromptLength = 2000
	maxLoRAs        = 6
	minLoRAWeight   = -2.0
	maxLoRAWeight   = 2.0
)

// supportedOutputs lists the extensions the resolver can encode.
var supportedOutputs = map[string]bool{
	"":      true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
}

// applyDefaults sets default values for unspecified request fields.
func applyDefaults(req *Request) {
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Model == "" {
		req.Model = DefaultModel
	}
	if req.Output == "" {
		req.Output = DefaultOutput
	}
}

// validate validates a request. Does not modify the request.
func validate(req *Request) error {
	if req.Prompt == "" {
		return apperrors.Validation("prompt", "prompt is required")
	}
	if len([]rune(req.Prompt)) > maxPromptLength {
		return apperrors.Validation("prompt", fmt.Sprintf("prompt must be at most %d characters", maxPromptLength))
	}
	if strings.TrimSpace(req.Model) == "" {
		return apperrors.Validation("model", "model is required")
	}
	if err := validateLoRAs(req.LoRAs); err != nil {
		return err
	}

	if strings.HasPrefix(req.Output, storage.S3Scheme) {
		if _, _, err := storage.ParseS3URI(req.Output); err != nil {
			return err
		}
	}

	ext := strings.ToLower(path.Ext(req.Output))
	if !supportedOutputs[ext] {
		return apperrors.Validation("output", fmt.Sprintf("unsupported output format %q (use .png, .jpg, .jpeg or .gif)", ext))
	}
	return nil
}

func validateLoRAs(l LoRAs) error {
	if len(l.Weights) > maxLoRAs {
		return apperrors.Validation("loras", fmt.Sprintf("at most %d adapters allowed", maxLoRAs))
	}
	for name, w := range l.Weights {
		if strings.TrimSpace(name) == "" {
			return apperrors.Validation("loras", "adapter name must not be empty")
		}
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return apperrors.Validation("loras", fmt.Sprintf("weight for %s must be a finite number", name))
		}
		if w < minLoRAWeight || w > maxLoRAWeight {
			return apperrors.Validation("loras", fmt.Sprintf("weight for %s must be between %g and %g", name, minLoRAWeight, maxLoRAWeight))
		}
	}
	return nil
}

// ParseLoRAs builds an adapter selection from command line values.
// A single bare name ("org/adapter") selects one adapter; "name=weight" entries
// build a weighted mapping. Mixing the two forms is rejected.
func ParseLoRAs(specs []string) (LoRAs, error) {
	if len(specs) == 0 {
		return LoRAs{}, nil
	}

	var out LoRAs
	for _, entry := range specs {
		name, weight, weighted := strings.Cut(entry, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return LoRAs{}, apperrors.Validation("loras", fmt.Sprintf("invalid adapter %q", entry))
		}
		if !weighted {
			if len(specs) > 1 {
				return LoRAs{}, apperrors.Validation("loras", "multiple adapters need explicit weights (name=weight)")
			}
			return LoRAs{Name: name}, nil
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(weight), 64)
		if err != nil {
			return LoRAs{}, apperrors.Validation("loras", fmt.Sprintf("invalid weight in %q", entry))
		}
		if out.Weights == nil {
			out.Weights = make(map[string]float64, len(specs))
		}
		out.Weights[name] = w
	}
	return out, validateLoRAs(out)
}
