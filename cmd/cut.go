package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"RingCut/config"
	"RingCut/core/audio"
	"RingCut/core/ringtone"
	"RingCut/logger"
	"RingCut/model"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	cutIn      string
	cutOut     string
	cutName    string
	cutStart   float64
	cutEnd     float64
	cutFadeIn  float64
	cutFadeOut float64
	cutVolume  float64
)

var cutCmd = &cobra.Command{
	Use:   "cut",
	Short: "离线剪辑铃声",
	Long:  `从本地MP3/WAV文件剪辑一段铃声，输出WAV和MP3两种格式，不需要启动服务器。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		defer initLogger(cfg)()
		return runCut(cmd.Context(), cfg)
	},
}

func runCut(ctx context.Context, cfg *config.Config) error {
	if _, err := audio.CheckExtension(cutIn); err != nil {
		return err
	}
	proc := audio.NewFFmpegProcessor(cfg.FFmpegPath, cfg.FFprobePath, cfg.MP3Bitrate)

	duration, err := proc.Duration(ctx, cutIn)
	if err != nil {
		return fmt.Errorf("probe %s: %w", cutIn, err)
	}
	source := model.NewOriginal(uuid.NewString(), filepath.Base(cutIn), cutIn, duration)

	editor := ringtone.NewEditor(ringtone.NewValidator(nil))
	if err := editor.Load(source); err != nil {
		return err
	}
	if err := editor.SetWindow(cutStart, cutEnd, cutName); err != nil {
		return err
	}
	rt, err := editor.Create()
	if err != nil {
		return err
	}
	settings := model.RingtoneSettings{StartTime: cutStart, EndTime: cutEnd, FadeIn: cutFadeIn, FadeOut: cutFadeOut, Volume: cutVolume}
	if err := ringtone.ValidateSettings(settings); err != nil {
		return err
	}

	if err := os.MkdirAll(cutOut, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	base := ringtone.BaseName(time.Now(), source.Name, cutStart, cutEnd)
	res, err := audio.NewExporter(proc, audio.NewTagger()).Export(ctx, cutIn, cutOut, base, audio.ClipOptionsFromSettings(settings), &audio.TagInfo{
		Title:   rt.Name,
		Artist:  "RingCut",
		Album:   ringtone.CleanOriginalName(source.Name),
		Comment: fmt.Sprintf("%gs-%gs of %s", cutStart, cutEnd, source.Name),
	})
	if err != nil {
		return err
	}

	fmt.Printf("ringtone:  %s (%.2fs of %.2fs)\n", rt.Name, rt.Duration, duration)
	fmt.Printf("wav:       %s\n", res.WAVPath)
	if res.MP3Path != "" {
		fmt.Printf("mp3:       %s\n", res.MP3Path)
	} else {
		logger.Warn("mp3 export skipped", logger.ErrorField(res.MP3Err))
		fmt.Printf("mp3:       not available (%v)\n", res.MP3Err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(cutCmd)

	cutCmd.Flags().StringVarP(&cutIn, "in", "i", "", "源音频文件 (.mp3 或 .wav)")
	cutCmd.Flags().StringVarP(&cutOut, "out", "o", ".", "输出目录")
	cutCmd.Flags().StringVarP(&cutName, "name", "n", "", "铃声名称，默认为 \"<原文件名> (ringtone)\"")
	cutCmd.Flags().Float64Var(&cutStart, "start", 0, "开始时间（秒）")
	cutCmd.Flags().Float64Var(&cutEnd, "end", 0, "结束时间（秒）")
	cutCmd.Flags().Float64Var(&cutFadeIn, "fade-in", 0, "淡入时长（秒）")
	cutCmd.Flags().Float64Var(&cutFadeOut, "fade-out", 0, "淡出时长（秒）")
	cutCmd.Flags().Float64Var(&cutVolume, "volume", 1, "音量 0..1")
	_ = cutCmd.MarkFlagRequired("in")
	_ = cutCmd.MarkFlagRequired("end")

	cutCmd.Example = `  # 剪辑第10到25.5秒
  ringcut cut -i song.mp3 --start 10 --end 25.5

  # 带淡入淡出，输出到 ringtones/
  ringcut cut -i song.wav --start 30 --end 60 --fade-in 1 --fade-out 2 -o ringtones`
}
