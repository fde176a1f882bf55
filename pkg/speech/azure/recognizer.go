// Package azure implements speech.Recognizer with the Azure Speech SDK.
// The SDK links against the native Speech library, so building this package
// requires cgo and the SDK's shared libraries.
package azure

import (
	"context"
	"errors"
	"fmt"

	"github.com/Microsoft/cognitive-services-speech-sdk-go/audio"
	"github.com/Microsoft/cognitive-services-speech-sdk-go/common"
	sdk "github.com/Microsoft/cognitive-services-speech-sdk-go/speech"
	"github.com/sirupsen/logrus"
	"github.com/z-wentao/speechflow/pkg/speech"
)

const eventBuffer = 32

// Recognizer 基于 Azure Speech SDK 的连续识别与会话转录
type Recognizer struct {
	key    string
	region string
	log    *logrus.Entry
}

// NewRecognizer 创建识别器
func NewRecognizer(key, region string, log *logrus.Entry) (*Recognizer, error) {
	if key == "" || region == "" {
		return nil, errors.New("azure speech recognition requires a subscription key and region")
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Recognizer{
		key:    key,
		region: region,
		log:    log.WithField("component", "speech"),
	}, nil
}

// session is the part of the SDK recognizers needed to stop and release one.
type session struct {
	stop    func() chan error
	release func()
}

// Start begins continuous recognition of src.WavFile. With
// src.DifferentiateSpeakers set it runs conversation transcription instead,
// and every recognized event carries the speaker id the service assigned.
func (r *Recognizer) Start(ctx context.Context, src speech.Source) (*speech.Subscription, error) {
	log := r.log.WithFields(logrus.Fields{
		"file":     src.WavFile,
		"speakers": src.DifferentiateSpeakers,
	})

	cfg, err := sdk.NewSpeechConfigFromSubscription(r.key, r.region)
	if err != nil {
		return nil, fmt.Errorf("create speech config: %w", err)
	}
	if src.Locale != "" {
		if err := cfg.SetSpeechRecognitionLanguage(src.Locale); err != nil {
			cfg.Close()
			return nil, fmt.Errorf("set recognition language: %w", err)
		}
	}

	audioCfg, err := audio.NewAudioConfigFromWavFileInput(src.WavFile)
	if err != nil {
		cfg.Close()
		return nil, fmt.Errorf("open wav input: %w", err)
	}
	releaseConfig := func() {
		audioCfg.Close()
		cfg.Close()
	}

	// 资源在订阅结束后由 watch 释放，回调中不直接停止识别
	sub := speech.NewSubscription(eventBuffer, nil)

	var s *session
	if src.DifferentiateSpeakers {
		s, err = startConversation(cfg, audioCfg, sub, log)
	} else {
		s, err = startRecognition(cfg, audioCfg, sub, log)
	}
	if err != nil {
		sub.Close()
		releaseConfig()
		return nil, err
	}

	go watch(ctx, sub, s, releaseConfig, log)
	return sub, nil
}

func startRecognition(cfg *sdk.SpeechConfig, audioCfg *audio.AudioConfig, sub *speech.Subscription, log *logrus.Entry) (*session, error) {
	recognizer, err := sdk.NewSpeechRecognizerFromConfig(cfg, audioCfg)
	if err != nil {
		return nil, fmt.Errorf("create recognizer: %w", err)
	}

	recognizer.SessionStarted(func(e sdk.SessionEventArgs) {
		defer e.Close()
		log.WithField("session_id", e.SessionID).Debug("session started")
	})
	recognizer.Recognized(func(e sdk.SpeechRecognitionEventArgs) {
		defer e.Close()
		ev := speech.Event{
			Kind:     speech.EventNoMatch,
			Offset:   e.Result.Offset,
			Duration: e.Result.Duration,
		}
		if e.Result.Reason == common.RecognizedSpeech {
			ev.Kind = speech.EventRecognized
			ev.Text = e.Result.Text
		}
		sub.Publish(ev)
	})
	recognizer.SessionStopped(func(e sdk.SessionEventArgs) {
		defer e.Close()
		log.Debug("session stopped")
		sub.Finish(speech.Event{Kind: speech.EventSessionStopped})
	})
	recognizer.Canceled(func(e sdk.SpeechRecognitionCanceledEventArgs) {
		defer e.Close()
		sub.Finish(canceledEvent(e.Reason, e.ErrorCode, e.ErrorDetails, log))
	})

	if err := <-recognizer.StartContinuousRecognitionAsync(); err != nil {
		recognizer.Close()
		return nil, fmt.Errorf("start continuous recognition: %w", err)
	}
	log.Info("✓ 开始连续识别")

	return &session{
		stop:    recognizer.StopContinuousRecognitionAsync,
		release: recognizer.Close,
	}, nil
}

func startConversation(cfg *sdk.SpeechConfig, audioCfg *audio.AudioConfig, sub *speech.Subscription, log *logrus.Entry) (*session, error) {
	transcriber, err := sdk.NewConversationTranscriberFromConfig(cfg, audioCfg)
	if err != nil {
		return nil, fmt.Errorf("create conversation transcriber: %w", err)
	}

	transcriber.SessionStarted(func(e sdk.SessionEventArgs) {
		defer e.Close()
		log.WithField("session_id", e.SessionID).Debug("session started")
	})
	transcriber.Transcribed(func(e sdk.ConversationTranscriptionEventArgs) {
		defer e.Close()
		ev := speech.Event{
			Kind:     speech.EventNoMatch,
			Offset:   e.Result.Offset,
			Duration: e.Result.Duration,
		}
		if e.Result.Reason == common.RecognizedSpeech {
			ev.Kind = speech.EventRecognized
			ev.Text = e.Result.Text
			ev.Speaker = e.Result.SpeakerID
		}
		sub.Publish(ev)
	})
	transcriber.SessionStopped(func(e sdk.SessionEventArgs) {
		defer e.Close()
		log.Debug("session stopped")
		sub.Finish(speech.Event{Kind: speech.EventSessionStopped})
	})
	transcriber.Canceled(func(e sdk.ConversationTranscriptionCanceledEventArgs) {
		defer e.Close()
		sub.Finish(canceledEvent(e.Reason, e.ErrorCode, e.ErrorDetails, log))
	})

	if err := <-transcriber.StartTranscribingAsync(); err != nil {
		transcriber.Close()
		return nil, fmt.Errorf("start conversation transcription: %w", err)
	}
	log.Info("✓ 开始会话转录（区分说话人）")

	return &session{
		stop:    transcriber.StopTranscribingAsync,
		release: transcriber.Close,
	}, nil
}

func canceledEvent(reason common.CancellationReason, code common.CancellationErrorCode, details string, log *logrus.Entry) speech.Event {
	ev := speech.Event{Kind: speech.EventCanceled}
	if reason == common.Error {
		ev.Err = fmt.Errorf("recognition canceled: code %d: %s", code, details)
		log.WithError(ev.Err).Warn("⚠️ 识别被取消")
	}
	return ev
}

// watch stops and releases the SDK objects once the subscription ends or ctx
// is cancelled. It never runs on an SDK callback thread.
func watch(ctx context.Context, sub *speech.Subscription, s *session, releaseConfig func(), log *logrus.Entry) {
	select {
	case <-sub.Done():
	case <-ctx.Done():
		sub.Close()
	}
	if err := <-s.stop(); err != nil {
		log.WithError(err).Warn("⚠️ 停止识别失败")
	}
	s.release()
	releaseConfig()
}
