package appscript

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Result — нормализованный исход вызова Apps Script.
// OK=true — Data содержит поле data ответа (JSON null, если его нет).
// OK=false — Code/Message описывают ошибку, Status — HTTP-статус или
// status из тела ответа (0, если неизвестен).
type Result struct {
	OK      bool
	Data    json.RawMessage
	Code    string
	Message string
	Status  int
}

var jsonNull = json.RawMessage("null")

func failure(code, message string, status int) Result {
	return Result{Code: code, Message: message, Status: status}
}

// Normalize приводит HTTP-ответ Apps Script к Result.
// Таблица решений полная: любой вход даёт ровно один исход.
func Normalize(status int, body []byte) Result {
	if status < 200 || status > 299 {
		msg := fmt.Sprintf("Apps Script returned HTTP %d", status)
		if _, m, ok := envelopeError(body); ok && m != "" {
			msg = m
		}
		return failure(CodeHTTPError, msg, status)
	}

	var env map[string]json.RawMessage
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' || json.Unmarshal(trimmed, &env) != nil {
		return failure(CodeInvalidResponse, "Apps Script returned invalid JSON", status)
	}

	// null и прочие не-boolean значения ok считаются нарушением формата
	var ok bool
	switch string(bytes.TrimSpace(env["ok"])) {
	case "true":
		ok = true
	case "false":
	default:
		return failure(CodeInvalidResponse, "Apps Script response has no ok flag", status)
	}

	if ok {
		data, has := env["data"]
		if !has {
			data = jsonNull
		}
		return Result{OK: true, Data: data, Status: status}
	}

	code, message, valid := envelopeError(trimmed)
	if !valid {
		return failure(CodeAppscriptError, "Apps Script error", status)
	}
	if message == "" {
		message = "Apps Script error"
	}
	res := failure(code, message, status)
	var bodyStatus any
	if s, has := env["status"]; has && json.Unmarshal(s, &bodyStatus) == nil {
		if n, isNum := bodyStatus.(float64); isNum {
			res.Status = int(n)
		}
	}
	return res
}

// envelopeError извлекает error.code и error.message.
// valid=false — error отсутствует, не объект или code не строка.
func envelopeError(body []byte) (code, message string, valid bool) {
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &env) != nil || len(env.Error) == 0 {
		return "", "", false
	}
	var e struct {
		Code    *json.RawMessage `json:"code"`
		Message json.RawMessage  `json:"message"`
	}
	if json.Unmarshal(env.Error, &e) != nil || e.Code == nil {
		return "", "", false
	}
	if json.Unmarshal(*e.Code, &code) != nil || code == "" {
		return "", "", false
	}
	// Нестроковое message игнорируется
	_ = json.Unmarshal(e.Message, &message)
	return code, message, true
}
