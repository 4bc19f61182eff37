// Package i18n holds the user-facing strings sent over the wire.
package i18n

import (
	"fmt"

	"golang.org/x/text/language"
)

// Key names a catalog entry.
type Key string

const (
	MsgServerConfigured      Key = "server_configured"
	MsgConfigApplied         Key = "config_applied"
	MsgConfigReapplied       Key = "config_reapplied"
	MsgConfigFailed          Key = "config_failed"
	MsgReconfigFailed        Key = "reconfig_failed"
	MsgConfigSaved           Key = "config_saved"
	MsgConfigSaveFailed      Key = "config_save_failed"
	MsgConfigureFirst        Key = "configure_first"
	MsgReady                 Key = "ready"
	MsgSessionStarted        Key = "session_started"
	MsgSessionNotInitialized Key = "session_not_initialized"
	MsgSessionCreateFailed   Key = "session_create_failed"
	MsgBusy                  Key = "busy"
	MsgBadFrame              Key = "bad_frame"
	MsgUnknownType           Key = "unknown_type"
	MsgAIPrompt              Key = "ai_prompt"
	MsgYouPrompt             Key = "you_prompt"
	MsgContinuePrompt        Key = "continue_prompt"
	MsgGeneratingPrompt      Key = "generating_prompt"
	MsgPromptGenerated       Key = "prompt_generated"
	MsgPromptGeneratedDirect Key = "prompt_generated_direct"
	MsgContinueSystem        Key = "continue_system"
	MsgContinueMessage       Key = "continue_message"
	MsgSessionEnded          Key = "session_ended"
	MsgEvaluating            Key = "evaluating"
	MsgEvaluationDone        Key = "evaluation_done"
	MsgEvaluationFailed      Key = "evaluation_failed"
	MsgEvaluationBusy        Key = "evaluation_busy"
	MsgEvaluationEmpty       Key = "evaluation_empty"
	MsgConfirmByScore        Key = "confirm_by_score"
	MsgConfirmByCount        Key = "confirm_by_count"
	MsgConversationError     Key = "conversation_error"
	MsgWriterError           Key = "writer_error"
	MsgNotConfigured         Key = "not_configured"
	MsgConfigureBefore       Key = "configure_before"
	MsgEmptyAnswer           Key = "empty_answer"
	MsgInternalError         Key = "internal_error"
)

var zh = map[Key]string{
	MsgServerConfigured:      "API（服务器端）已配置，直接接受连接",
	MsgConfigApplied:         "API已配置: %s",
	MsgConfigReapplied:       "API已重新配置: %s",
	MsgConfigFailed:          "API配置失败，请检查配置参数",
	MsgReconfigFailed:        "API重新配置失败",
	MsgConfigSaved:           "API配置已初始化",
	MsgConfigSaveFailed:      "API初始化失败，请检查配置参数",
	MsgConfigureFirst:        "请先配置API，点击设置按钮进行配置",
	MsgReady:                 "已就绪，请描述您想创建的角色",
	MsgSessionStarted:        "会话已开始",
	MsgSessionNotInitialized: "会话未初始化，请先发送消息",
	MsgSessionCreateFailed:   "创建会话失败: %s",
	MsgBusy:                  "上一条消息仍在处理中，请稍候",
	MsgBadFrame:              "无法解析消息",
	MsgUnknownType:           "未知的消息类型: %s",
	MsgAIPrompt:              "角色档案已确认，正在为您撰写最终提示词...",
	MsgYouPrompt:             "好的，我们继续完善这个角色。",
	MsgContinuePrompt:        "还有哪些方面想补充？比如角色的过往经历、说话方式或人际关系。",
	MsgGeneratingPrompt:      "正在生成最终提示词...",
	MsgPromptGenerated:       "提示词已生成，您可以继续补充细节或开始新对话",
	MsgPromptGeneratedDirect: "提示词已生成，您可以继续补充细节",
	MsgContinueSystem:        "继续补充角色细节...",
	MsgContinueMessage:       "请继续描述您想要补充的角色特征",
	MsgSessionEnded:          "会话已结束",
	MsgEvaluating:            "[评估服务] 正在评估角色档案...",
	MsgEvaluationDone:        "[评估完成] %s",
	MsgEvaluationFailed:      "[评估服务] 评估出错: %s",
	MsgEvaluationBusy:        "[评估服务] 评估队列繁忙，请稍后再试",
	MsgEvaluationEmpty:       "[评估服务] 档案为空",
	MsgConfirmByScore:        "评估认为角色档案已可用于写作，是否现在生成最终提示词？",
	MsgConfirmByCount:        "已收集 %d 项角色特征，是否现在生成最终提示词？",
	MsgConversationError:     "对话生成出错: %s",
	MsgWriterError:           "提示词生成出错: %s",
	MsgNotConfigured:         "LLM 尚未配置",
	MsgConfigureBefore:       "请先配置API，配置完成前无法处理 %s 消息",
	MsgEmptyAnswer:           "消息内容为空，请描述您的角色",
	MsgInternalError:         "服务器内部错误，请稍后重试",
}

var en = map[Key]string{
	MsgServerConfigured:      "API is configured on the server, connection accepted",
	MsgConfigApplied:         "API configured: %s",
	MsgConfigReapplied:       "API reconfigured: %s",
	MsgConfigFailed:          "API configuration failed, please check the parameters",
	MsgReconfigFailed:        "API reconfiguration failed",
	MsgConfigSaved:           "API configuration initialized",
	MsgConfigSaveFailed:      "API initialization failed, please check the parameters",
	MsgConfigureFirst:        "Please configure the API first using the settings button",
	MsgReady:                 "Ready. Describe the character you want to create",
	MsgSessionStarted:        "Session started",
	MsgSessionNotInitialized: "Session not initialized, send a message first",
	MsgSessionCreateFailed:   "Failed to create session: %s",
	MsgBusy:                  "The previous message is still being processed",
	MsgBadFrame:              "Could not parse message",
	MsgUnknownType:           "Unknown message type: %s",
	MsgAIPrompt:              "Profile confirmed, writing the final prompt...",
	MsgYouPrompt:             "Sure, let's keep refining the character.",
	MsgContinuePrompt:        "What else would you like to add? Their history, way of speaking, or relationships perhaps.",
	MsgGeneratingPrompt:      "Generating the final prompt...",
	MsgPromptGenerated:       "Prompt generated. You can keep adding details or start a new conversation",
	MsgPromptGeneratedDirect: "Prompt generated. You can keep adding details",
	MsgContinueSystem:        "Continuing with character details...",
	MsgContinueMessage:       "Please describe the traits you want to add",
	MsgSessionEnded:          "Session ended",
	MsgEvaluating:            "[evaluator] Evaluating the profile...",
	MsgEvaluationDone:        "[evaluation complete] %s",
	MsgEvaluationFailed:      "[evaluator] Evaluation error: %s",
	MsgEvaluationBusy:        "[evaluator] Evaluation queue is full, try again shortly",
	MsgEvaluationEmpty:       "[evaluator] Profile is empty",
	MsgConfirmByScore:        "The evaluator considers the profile ready. Generate the final prompt now?",
	MsgConfirmByCount:        "%d traits collected. Generate the final prompt now?",
	MsgConversationError:     "Conversation error: %s",
	MsgWriterError:           "Prompt generation error: %s",
	MsgNotConfigured:         "LLM is not configured",
	MsgConfigureBefore:       "Configure the API first, %s cannot be handled before that",
	MsgEmptyAnswer:           "The message is empty, please describe your character",
	MsgInternalError:         "Internal error, please try again",
}

var (
	supported = []language.Tag{language.Chinese, language.English}
	catalogs  = []map[Key]string{zh, en}
	matcher   = language.NewMatcher(supported)
)

// Catalog renders localized strings for one language.
type Catalog struct {
	tag  language.Tag
	msgs map[Key]string
}

// For picks the best catalog for a BCP 47 tag or Accept-Language style
// list. Unknown or empty input yields Chinese.
func For(lang ...string) *Catalog {
	_, idx := language.MatchStrings(matcher, lang...)
	return &Catalog{tag: supported[idx], msgs: catalogs[idx]}
}

// Language returns the base language code, e.g. "zh".
func (c *Catalog) Language() string {
	base, _ := c.tag.Base()
	return base.String()
}

// T formats the entry for key. Missing keys render as the key itself.
func (c *Catalog) T(key Key, args ...any) string {
	msg, ok := c.msgs[key]
	if !ok {
		msg, ok = zh[key]
	}
	if !ok {
		return string(key)
	}
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}
