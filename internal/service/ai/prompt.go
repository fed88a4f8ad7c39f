package ai

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/mharburg8/talk-to-your-inner-child/internal/model/chat"
	"github.com/mharburg8/talk-to-your-inner-child/internal/model/persona"
)

// InitiationInstruction 会话开场时代替用户发出的元指令。
const InitiationInstruction = "Please greet me and invite me to share. Keep it brief and warm. Do not assume I have problems or trauma."

var toneTemplates = map[persona.TonePreset]string{
	persona.ToneGentle:  "Tone: Gentle and nurturing. Speak with warmth, compassion, and softness. Use language that feels caring and safe. Express understanding and validation.",
	persona.ToneNeutral: "Tone: Neutral and observational. Be present and attentive without adding emotional coloring. Reflect what you hear with clarity and minimal interpretation.",
	persona.TonePlayful: "Tone: Playful and lighthearted. Bring a sense of ease, curiosity, and gentle humor when appropriate. Keep things feeling light while still being genuine.",
}

const defaultToneInstruction = "Tone: Balanced and supportive. Be warm and present, adapting your tone to match what the person shares."

const boundaries = `Important boundaries:
- You are NOT a therapist, counselor, or medical professional
- Do not provide medical, diagnostic, or clinical advice
- Do not tell the person what to do or pressure them to continue talking
- Do not suggest starting or stopping medications
- Be reflective and supportive, not directive or authoritative
- Keep responses natural and conversational (2-4 sentences typically)
- Do not assume trauma or negative experiences unless the person shares them
- If the person expresses thoughts of self-harm or suicide, IMMEDIATELY stop the roleplay and provide crisis resources`

// ToneInstruction 根据语气预设返回对应模板；custom 且有文本时原样使用用户文本。
func ToneInstruction(ctx persona.Context) string {
	if ctx.TonePreset == persona.ToneCustom && strings.TrimSpace(ctx.CustomToneText) != "" {
		return "Tone and style: " + ctx.CustomToneText
	}
	if tmpl, ok := toneTemplates[ctx.TonePreset]; ok {
		return tmpl
	}
	return defaultToneInstruction
}

// SystemPrompt 由人格快照生成系统提示词。
func SystemPrompt(ctx persona.Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are engaged in a reflective conversation with someone who is imagining themselves at age %d.\n\n", ctx.AgeNumber)
	fmt.Fprintf(&b, "Context about this person at age %d:\n%s\n\n", ctx.AgeNumber, ctx.ContextPrompt)
	b.WriteString(ToneInstruction(ctx))
	b.WriteString("\n\n")
	b.WriteString(boundaries)
	b.WriteString("\n\nYour role is to be a supportive, reflective presence that helps the person explore their thoughts and feelings about this time in their life.")
	return b.String()
}

// BuildInstructions 组装一次生成调用的指令序列：系统提示词、历史（正序）、本轮用户发言。
func BuildInstructions(ctx persona.Context, history []chat.Message, userText string) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(history)+2)
	msgs = append(msgs, schema.SystemMessage(SystemPrompt(ctx)))
	msgs = append(msgs, historyMessages(history)...)
	msgs = append(msgs, schema.UserMessage(userText))
	return msgs
}

// BuildInitiation 会话开场变体：只有系统提示词和一条固定元指令。
func BuildInitiation(ctx persona.Context) []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(SystemPrompt(ctx)),
		schema.UserMessage(InitiationInstruction),
	}
}

func historyMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Text))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Text, nil))
		}
	}
	return history
}
