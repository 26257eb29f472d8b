package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/webmlive/go-live-encoder/internal"
)

func main() {
	internal.SetupUsage()
	pflag.Parse()

	if err := internal.ValidateFlags(); err != nil {
		pflag.Usage()
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		os.Exit(1)
	}

	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func buildConfig() internal.WebmEncoderConfig {
	config := internal.DefaultWebmEncoderConfig()
	config.DisableAudio = internal.FlagADisable
	config.DisableVideo = internal.FlagVDisable
	config.ManualAudioConfig = internal.FlagAManual
	config.ManualVideoConfig = internal.FlagVManual

	audioFormat := internal.AudioFormatPCM
	if internal.FlagASize == 32 {
		audioFormat = internal.AudioFormatIEEEFloat
	}
	config.RequestedAudioConfig = internal.AudioConfig{
		Format:        audioFormat,
		Channels:      internal.FlagAChannels,
		SampleRate:    internal.FlagARate,
		BitsPerSample: internal.FlagASize,
		BlockAlign:    internal.FlagAChannels * internal.FlagASize / 8,
	}
	config.RequestedVideoConfig = internal.VideoConfig{
		Format:    internal.VideoFormatI420,
		Width:     internal.FlagVWidth,
		Height:    internal.FlagVHeight,
		FrameRate: internal.FlagVFrameRate,
	}

	vc := config.VorbisConfig
	vc.AverageBitrate = internal.FlagVorbisBitrate
	vc.MinimumBitrate = internal.FlagVorbisMinBitrate
	vc.MaximumBitrate = internal.FlagVorbisMaxBitrate
	vc.BitrateBasedQuality = !internal.FlagVorbisDisableVBR
	vc.ImpulseBlockBias = internal.FlagVorbisIBlockBias
	vc.LowpassFrequency = internal.FlagVorbisLowpassFreq
	config.VorbisConfig = vc

	vpx := config.VpxConfig
	if internal.FlagVpxCodec == "vp9" {
		vpx.Codec = internal.VideoFormatVP9
	} else {
		vpx.Codec = internal.VideoFormatVP8
	}
	vpx.Bitrate = internal.FlagVpxBitrate
	vpx.KeyframeInterval = internal.FlagVpxKeyframeInterval
	vpx.Decimate = internal.FlagVpxDecimate
	vpx.MinQuantizer = internal.FlagVpxMinQ
	vpx.MaxQuantizer = internal.FlagVpxMaxQ
	vpx.Speed = internal.FlagVpxSpeed
	vpx.StaticThreshold = internal.FlagVpxStaticThreshold
	vpx.ThreadCount = internal.FlagVpxThreads
	vpx.TokenPartitions = internal.FlagVpxTokenPartitions
	vpx.Undershoot = internal.FlagVpxUndershoot
	vpx.NoiseSensitivity = internal.FlagVpxNoiseSensitivity
	config.VpxConfig = vpx

	config.DashEncode = internal.FlagDashEncode
	config.DashName = internal.FlagDashName
	config.DashDir = internal.FlagDashDir
	config.DashStartNumber = internal.FlagDashStartNum
	return config
}

func run() error {
	config := buildConfig()

	fanout := internal.NewSinkFanout()
	var fileWriter *internal.FileWriter
	var uploader *internal.HttpUploader
	if config.DashEncode {
		fileWriter = internal.NewFileWriter(config.DashDir, true)
		fileWriter.Run()
		fanout.AddSink(fileWriter)
	} else {
		uploader = internal.NewHttpUploader(internal.HttpUploaderSettings{
			TargetURL:     internal.FlagURL,
			StreamID:      internal.FlagStreamID,
			StreamName:    internal.FlagStreamName,
			FormPost:      internal.FlagFormPost,
			Headers:       internal.ParsedHeaders(),
			FormVariables: internal.ParsedVars(),
			LocalFileName: "webm_file",
		})
		uploader.Run()
		fanout.AddSink(uploader)
	}

	capture := internal.NewSyntheticSource(config.RequestedAudioConfig, config.RequestedVideoConfig)
	if config.DisableAudio {
		capture = internal.NewSyntheticSource(internal.AudioConfig{}, config.RequestedVideoConfig)
	}
	if config.DisableVideo {
		capture = internal.NewSyntheticSource(config.RequestedAudioConfig, internal.VideoConfig{})
	}

	encoder := internal.NewWebmEncoder()
	if err := encoder.Init(config, capture, fanout); err != nil {
		return fmt.Errorf("encoder init failed: %w", err)
	}
	if err := encoder.Run(); err != nil {
		return fmt.Errorf("encoder run failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Encoding to %s\n", internal.FlagURL)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	keyPress := make(chan struct{}, 1)
	go func() {
		var b [1]byte
		if _, err := os.Stdin.Read(b[:]); err == nil {
			keyPress <- struct{}{}
		}
	}()

	select {
	case <-sigChan:
	case <-keyPress:
	}

	fmt.Fprintln(os.Stderr, "Stopping...")
	encoder.Stop()

	if uploader != nil {
		uploader.Stop()
	}
	if fileWriter != nil {
		fileWriter.Stop()
	}

	return nil
}
