package tts

// ElevenLabsVoices maps preset names to ElevenLabs voice IDs. The set is
// limited to slow, low-arousal voices suited to guided breathing and
// check-ins; the mood aliases point at the same IDs as the named voices.
var ElevenLabsVoices = map[string]string{
	"rachel":    "21m00Tcm4TlvDq8ikWAM",
	"sarah":     "EXAVITQu4vr4xnSDxMaL",
	"charlotte": "XB0fDUnXU5powFXDhCwa",
	"adam":      "pNInz6obpgDQGcFmaJgB",

	"calm":     "21m00Tcm4TlvDq8ikWAM",
	"soothing": "EXAVITQu4vr4xnSDxMaL",
	"warm":     "XB0fDUnXU5powFXDhCwa",
	"grounded": "pNInz6obpgDQGcFmaJgB",
}

// DefaultElevenLabsVoice is used when neither the config nor the request
// names a voice.
const DefaultElevenLabsVoice = "calm"

// ResolveElevenLabsVoice maps a preset name to its voice ID. Anything else is
// treated as a raw ElevenLabs voice ID.
func ResolveElevenLabsVoice(name string) string {
	if id, ok := ElevenLabsVoices[name]; ok {
		return id
	}
	return name
}
