package domain

import "fmt"

type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

func ParseQuality(s string) (Quality, error) {
	switch q := Quality(s); q {
	case QualityLow, QualityMedium, QualityHigh:
		return q, nil
	}
	return "", fmt.Errorf("%w: unknown quality %q", ErrInvalidInput, s)
}

// AvatarSelection is the avatar/voice pair requested on session creation.
type AvatarSelection struct {
	AvatarName string
	VoiceID    string
	Quality    Quality
}
