package validation

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"waflow/internal/constants"
	"waflow/internal/errors"
	"waflow/internal/models"
)

// CanonicalPhone reduces a phone number to its canonical digits-only form
func CanonicalPhone(phone string) string {
	var sb strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// ValidatePhone validates a canonical digits-only phone number
func ValidatePhone(phone string) error {
	if phone == "" {
		return errors.New(errors.ErrCodeInvalidInput, "phone number cannot be empty")
	}
	if len(phone) < constants.MinPhoneNumberLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("phone number must be at least %d digits", constants.MinPhoneNumberLength))
	}
	if len(phone) > constants.MaxPhoneNumberLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("phone number too long (max %d digits)", constants.MaxPhoneNumberLength))
	}
	for _, r := range phone {
		if !unicode.IsDigit(r) {
			return errors.New(errors.ErrCodeInvalidInput, "phone number must contain only digits")
		}
	}
	return nil
}

// ValidateURL validates an absolute http(s) URL
func ValidateURL(raw string) error {
	if raw == "" {
		return errors.New(errors.ErrCodeInvalidInput, "URL cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("unsupported URL scheme %q", u.Scheme))
	}
	if u.Host == "" {
		return errors.New(errors.ErrCodeInvalidInput, "URL is missing a host")
	}
	return nil
}

var allowedHTTPMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
}

var allowedMediaTypes = map[string]bool{
	"image": true, "video": true, "audio": true, "document": true,
}

// ValidateNodeData checks a node's data against its type's contract. The
// sanitizer leaves data untouched; these constraints hold at execution time.
func ValidateNodeData(node *models.Node) error {
	data := node.Data
	if data == nil {
		data = map[string]interface{}{}
	}

	switch node.Type {
	case models.NodeTrigger:
		keyword := dataString(data, "keyword")
		if keyword == "" || len(keyword) > constants.MaxTriggerKeywordLength {
			return nodeErr(node, "keyword must be 1-64 characters")
		}

	case models.NodeMessage:
		if dataBool(data, "useTemplate") {
			if dataString(data, "templateName") == "" {
				return nodeErr(node, "templateName is required in template mode")
			}
			if dataString(data, "templateLanguage") == "" {
				return nodeErr(node, "templateLanguage is required in template mode")
			}
		} else {
			text := dataString(data, "text")
			if text == "" {
				return nodeErr(node, "text is required")
			}
			if len(text) > constants.MaxMessageTextLength {
				return nodeErr(node, fmt.Sprintf("text too long (max %d characters)", constants.MaxMessageTextLength))
			}
		}

	case models.NodeOptions:
		options := DataStringSlice(data, "options")
		if len(options) < constants.MinOptionCount || len(options) > constants.MaxOptionCount {
			return nodeErr(node, fmt.Sprintf("options must have %d-%d entries", constants.MinOptionCount, constants.MaxOptionCount))
		}
		for _, opt := range options {
			if opt == "" || len(opt) > constants.MaxOptionLength {
				return nodeErr(node, fmt.Sprintf("each option must be 1-%d characters", constants.MaxOptionLength))
			}
		}

	case models.NodeDelay:
		seconds, ok := dataNumber(data, "seconds")
		if !ok || seconds < constants.MinDelaySeconds || seconds > constants.MaxDelaySeconds {
			return nodeErr(node, fmt.Sprintf("seconds must be %d-%d", constants.MinDelaySeconds, constants.MaxDelaySeconds))
		}

	case models.NodeCondition:
		expression := dataString(data, "expression")
		if expression == "" || len(expression) > constants.MaxExpressionLength {
			return nodeErr(node, fmt.Sprintf("expression must be 1-%d characters", constants.MaxExpressionLength))
		}

	case models.NodeAPI:
		if err := ValidateURL(dataString(data, "url")); err != nil {
			return nodeErr(node, "url must be a valid http(s) URL")
		}
		method := strings.ToUpper(dataString(data, "method"))
		if !allowedHTTPMethods[method] {
			return nodeErr(node, fmt.Sprintf("unsupported method %q", dataString(data, "method")))
		}
		if headers, present := data["headers"]; present {
			obj, ok := headers.(map[string]interface{})
			if !ok {
				return nodeErr(node, "headers must be a string map")
			}
			for _, v := range obj {
				if _, ok := v.(string); !ok {
					return nodeErr(node, "headers must be a string map")
				}
			}
		}
		if body, present := data["body"]; present {
			if _, ok := body.(string); !ok {
				return nodeErr(node, "body must be a string")
			}
		}

	case models.NodeAssign:
		key := dataString(data, "key")
		if key == "" || len(key) > constants.MaxAssignKeyLength {
			return nodeErr(node, fmt.Sprintf("key must be 1-%d characters", constants.MaxAssignKeyLength))
		}
		if len(dataString(data, "value")) > constants.MaxAssignValueLength {
			return nodeErr(node, fmt.Sprintf("value too long (max %d characters)", constants.MaxAssignValueLength))
		}

	case models.NodeMedia:
		mediaType := dataString(data, "mediaType")
		if !allowedMediaTypes[mediaType] {
			return nodeErr(node, fmt.Sprintf("unsupported mediaType %q", mediaType))
		}
		mediaURL := dataString(data, "url")
		mediaID := dataString(data, "id")
		if mediaURL == "" && mediaID == "" {
			return nodeErr(node, "media requires either url or id")
		}
		if mediaURL != "" && mediaID == "" {
			if err := ValidateURL(mediaURL); err != nil {
				return nodeErr(node, "url must be a valid http(s) URL")
			}
		}

	case models.NodeWhatsAppFlow:
		body := dataString(data, "body")
		if body == "" || len(body) > constants.MaxFlowBodyLength {
			return nodeErr(node, fmt.Sprintf("body must be 1-%d characters", constants.MaxFlowBodyLength))
		}
		if len(dataString(data, "header")) > constants.MaxFlowHeaderLength {
			return nodeErr(node, fmt.Sprintf("header too long (max %d characters)", constants.MaxFlowHeaderLength))
		}
		if len(dataString(data, "footer")) > constants.MaxFlowFooterLength {
			return nodeErr(node, fmt.Sprintf("footer too long (max %d characters)", constants.MaxFlowFooterLength))
		}
		if len(dataString(data, "cta")) > constants.MaxFlowCTALength {
			return nodeErr(node, fmt.Sprintf("cta too long (max %d characters)", constants.MaxFlowCTALength))
		}

	case models.NodeHandoff:
		if dataString(data, "queue") == "" {
			return nodeErr(node, "queue is required")
		}
		if len(dataString(data, "note")) > constants.MaxHandoffNoteLength {
			return nodeErr(node, fmt.Sprintf("note too long (max %d characters)", constants.MaxHandoffNoteLength))
		}

	case models.NodeGoto:
		if dataString(data, "targetNodeId") == "" {
			return nodeErr(node, "targetNodeId is required")
		}

	case models.NodeEnd:
		// reason is optional and defaults at execution time

	default:
		return nodeErr(node, fmt.Sprintf("unknown node type %q", node.Type))
	}

	return nil
}

// DataStringSlice reads a []string out of node data, tolerating the
// []interface{} shape JSON decoding produces
func DataStringSlice(data map[string]interface{}, key string) []string {
	switch v := data[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil
			}
			out = append(out, s)
		}
		return out
	}
	return nil
}

func nodeErr(node *models.Node, message string) error {
	return errors.NewNodeDataError(node.ID, string(node.Type), message)
}

func dataString(data map[string]interface{}, key string) string {
	s, _ := data[key].(string)
	return s
}

func dataBool(data map[string]interface{}, key string) bool {
	b, _ := data[key].(bool)
	return b
}

func dataNumber(data map[string]interface{}, key string) (float64, bool) {
	switch v := data[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
