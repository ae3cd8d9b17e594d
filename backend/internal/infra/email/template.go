package email

import (
	"fmt"
	"html/template"
	"strings"
)

var otpHTMLTemplate = template.Must(template.New("otp_html").Parse(`<p>Hello {{.Name}},</p>
<p>Welcome to <strong>PromptHub</strong>! Your verification code is:</p>
<p style="font-size:28px;font-weight:bold;letter-spacing:6px;">{{.Code}}</p>
<p>The code expires in {{.TTLMinutes}} minutes. Never share it with anyone.</p>
<hr>
<p>您好 {{.Name}}，感谢注册 <strong>PromptHub</strong>。</p>
<p>您的注册验证码为 <strong>{{.Code}}</strong>，{{.TTLMinutes}} 分钟内有效，请勿泄露给他人。</p>
<p>如果这不是您本人的操作，请忽略此邮件。</p>
<p>PromptHub Team</p>`))

// composeOTPContent 根据收件人与验证码生成邮件主题与正文。
func composeOTPContent(name, code string, ttlMinutes int) (subject string, textBody string, htmlBody string) {
	displayName := safeDisplayName(name)
	if ttlMinutes <= 0 {
		ttlMinutes = 10
	}

	subject = "Your PromptHub verification code | PromptHub 注册验证码"

	textBody = fmt.Sprintf("Hello %s,\n\nWelcome to PromptHub! Your verification code is:\n\n%s\n\nThe code expires in %d minutes. Never share it with anyone.\n\n----\n您好 %s，感谢注册 PromptHub。\n您的注册验证码为 %s，%d 分钟内有效，请勿泄露给他人。\n\n如果这不是您本人的操作，请忽略此邮件。\n\nPromptHub Team",
		displayName, code, ttlMinutes, displayName, code, ttlMinutes,
	)

	tmplData := struct {
		Name       string
		Code       string
		TTLMinutes int
	}{
		Name:       displayName,
		Code:       code,
		TTLMinutes: ttlMinutes,
	}

	htmlBodyBuilder := new(strings.Builder)
	_ = otpHTMLTemplate.Execute(htmlBodyBuilder, tmplData)
	htmlBody = htmlBodyBuilder.String()

	return subject, textBody, htmlBody
}

func safeDisplayName(name string) string {
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		return trimmed
	}
	return "there"
}
