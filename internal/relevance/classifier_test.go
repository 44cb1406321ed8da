package relevance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const resumeText = `John Doe
john.doe@example.com | (555) 123-4567
Professional Summary
Software engineer with five years of experience building backend services.
Work Experience
Acme Corp, Senior Engineer, 2019 - Present
Education
Bachelor of Science, State University
Skills
Go, MySQL, Redis, RabbitMQ`

const invoiceText = `Invoice #2024-117
Purchase order: PO-5521
Bill to: Acme Corp
Item        Qty   Price
Widget A    10    $25.00
Total due: $250.00`

// TestIsResume 正向样本判定
func TestIsResume(t *testing.T) {
	c := NewClassifier()

	assert.True(t, c.IsResume("john_doe_resume.pdf", resumeText), "典型简历应判为简历")
	assert.True(t, c.IsResume("document.pdf", resumeText), "文件名无信号但正文充分时也应判为简历")
	assert.False(t, c.IsResume("", ""), "空上下文不应判为简历")
	assert.False(t, c.IsResume("invoice.pdf", invoiceText), "发票不应判为简历")
}

// TestIsClearlyNotResume 负向样本判定
func TestIsClearlyNotResume(t *testing.T) {
	c := NewClassifier()

	assert.True(t, c.IsClearlyNotResume("", ""), "空上下文视为明显非简历")
	assert.True(t, c.IsClearlyNotResume("invoice.pdf", invoiceText), "发票应判为明显非简历")
	assert.False(t, c.IsClearlyNotResume("resume.pdf", resumeText), "典型简历不应判为明显非简历")

	// 中间带：既不像简历也不明显非简历
	ambiguous := "Some notes about a project meeting next week."
	assert.False(t, c.IsResume("notes.txt", ambiguous), "模糊文本不应判为简历")
	assert.False(t, c.IsClearlyNotResume("notes.txt", ambiguous), "模糊文本也不应判为明显非简历")
}

// TestThresholdOverrides 阈值可由部署侧调整
func TestThresholdOverrides(t *testing.T) {
	strict := NewClassifier(WithAcceptScore(1000))
	assert.False(t, strict.IsResume("resume.pdf", resumeText), "极高接受阈值下任何输入都不应通过")

	lenient := NewClassifier(WithRejectScore(-1000))
	assert.False(t, lenient.IsClearlyNotResume("notes.txt", "weekly meeting notes"), "极低拒绝阈值下单一负向信号不应触发拒绝")
}
