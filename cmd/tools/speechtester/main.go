package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/mharburg8/talk-to-your-inner-child/internal/config"
	"github.com/mharburg8/talk-to-your-inner-child/internal/logging"
	speechmodel "github.com/mharburg8/talk-to-your-inner-child/internal/model/speech"
	"github.com/mharburg8/talk-to-your-inner-child/internal/service/speech"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}
	// 工具不走 HTTP 鉴权。
	if os.Getenv("AUTH_JWT_SECRET") == "" {
		_ = os.Setenv("AUTH_DISABLED", "true")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	mode := flag.String("mode", "", "测试模式: asr 或 tts")
	audioPath := flag.String("audio", "", "ASR 输入音频文件路径")
	mimeType := flag.String("mime", "", "ASR 输入 MIME 类型，默认按扩展名推断")
	text := flag.String("text", "", "TTS 输入文本")
	outputPath := flag.String("out", "", "TTS 输出 WAV 文件路径")
	voiceKey := flag.String("voice-key", "", "参考声音的存储 key，末段以 S_ 开头时使用复刻音色")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")
	flag.Parse()

	if *mode != "asr" && *mode != "tts" {
		flag.Usage()
		log.Fatal("请通过 -mode=asr 或 -mode=tts 指定测试模式")
	}

	logger := logging.New(os.Stderr, "text", "info")
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *mode {
	case "asr":
		transcriber := speech.NewTranscriber(ctx, cfg, logger, &http.Client{Timeout: *timeout})
		runASR(ctx, transcriber, *audioPath, *mimeType)
	case "tts":
		synthesizer := speech.NewSynthesizer(ctx, cfg, logger)
		runTTS(ctx, synthesizer, *text, *voiceKey, *outputPath)
	}
}

func runASR(ctx context.Context, transcriber speech.Transcriber, audioPath, mimeType string) {
	if audioPath == "" {
		log.Fatal("ASR 模式需要通过 -audio 指定音频文件路径")
	}

	audio, err := os.ReadFile(audioPath)
	if err != nil {
		log.Fatalf("读取音频文件失败: %v", err)
	}

	if mimeType == "" {
		mimeType = mimeFromExt(filepath.Ext(audioPath))
	}
	if !speechmodel.IsAllowedAudioType(mimeType) {
		log.Fatalf("不支持的音频类型 %q，允许: %v", mimeType, speechmodel.AllowedAudioTypes)
	}

	log.Printf("开始进行 ASR 测试: provider=%s bytes=%d mime=%s", transcriber.Name(), len(audio), mimeType)

	start := time.Now()
	transcript, err := transcriber.Transcribe(ctx, audio, mimeType)
	if err != nil {
		log.Fatalf("ASR 调用失败: %v", err)
	}

	log.Printf("ASR 识别成功: text=%q elapsed=%s", transcript, time.Since(start))
}

func runTTS(ctx context.Context, synthesizer speech.Synthesizer, text, voiceKey, outputPath string) {
	if text == "" {
		log.Fatal("TTS 模式需要通过 -text 提供待合成文本")
	}
	if outputPath == "" {
		outputPath = fmt.Sprintf("tts-output-%d.wav", time.Now().Unix())
	}

	log.Printf("开始进行 TTS 测试: provider=%s voice_key=%q", synthesizer.Name(), voiceKey)

	start := time.Now()
	audio, err := synthesizer.Synthesize(ctx, text, voiceKey)
	if err != nil {
		log.Fatalf("TTS 调用失败: %v", err)
	}

	if err := os.WriteFile(outputPath, audio, 0o644); err != nil {
		log.Fatalf("写入音频文件失败: %v", err)
	}

	log.Printf("TTS 合成成功: 输出文件 %s, bytes=%d elapsed=%s", outputPath, len(audio), time.Since(start))
}

func mimeFromExt(ext string) string {
	switch ext {
	case ".mp3":
		return "audio/mpeg"
	case ".webm":
		return "audio/webm"
	case ".ogg", ".opus":
		return "audio/ogg"
	default:
		return "audio/wav"
	}
}
