package extraction

import (
	"github.com/rsamf/mink/internal/conf"
	"github.com/rsamf/mink/internal/httpclient"
	"github.com/rsamf/mink/internal/logger"
)

// Backend and model names accepted in configuration.
const (
	BackendWhisper = "whisper"

	ModelTesseract  = "tesseract"
	ModelEasyOCR    = "easyocr"
	ModelLightOnOCR = "lightonocr"
)

// NewTranscriber builds the configured transcription adapter. An unknown or
// disabled backend yields an adapter that logs and returns no events.
func NewTranscriber(settings *conf.Settings, media *Media, client *httpclient.Client, log logger.Logger) Transcriber {
	switch settings.Transcript.Backend {
	case BackendWhisper:
		return NewWhisperTranscriber(&settings.Transcript, media, client, log)
	case conf.BackendNone, "":
		return &nopTranscriber{log: log}
	default:
		log.Error("unknown transcription backend", logger.String("backend", settings.Transcript.Backend))
		return &nopTranscriber{backend: settings.Transcript.Backend, log: log}
	}
}

// NewRecognizer builds the configured frame recognizer. An unknown model is
// logged and yields a recognizer that finds nothing.
func NewRecognizer(settings *conf.OCRSettings, exec Executor, client *httpclient.Client, log logger.Logger) Recognizer {
	switch settings.Model {
	case ModelTesseract:
		return NewTesseractRecognizer(settings.TesseractPath, settings.Lang, settings.MinConfidence, exec)
	case ModelEasyOCR:
		return NewEasyOCRRecognizer(settings.Endpoint, settings.Lang, client)
	case ModelLightOnOCR:
		return NewLightOnRecognizer(settings.Endpoint, settings.RemoteModel, settings.MaxTokens, client)
	default:
		log.Error("unknown OCR model", logger.String("model", settings.Model))
		return nopRecognizer{}
	}
}

// NewScreenReader builds the OCR adapter. Unknown or disabled models skip
// shot detection entirely.
func NewScreenReader(settings *conf.Settings, media *Media, client *httpclient.Client, log logger.Logger) ScreenReader {
	ocr := &settings.OCR
	switch ocr.Model {
	case ModelTesseract, ModelEasyOCR, ModelLightOnOCR:
		rec := NewRecognizer(ocr, media.Exec, client, log)
		return NewShotReader(media, rec, ocr.SceneThreshold, ocr.MaxScenes, log)
	case conf.BackendNone, "":
		return &nopScreenReader{log: log}
	default:
		log.Error("unknown OCR model", logger.String("model", ocr.Model))
		return &nopScreenReader{model: ocr.Model, log: log}
	}
}
