package audit

func strPtr(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func (r *Recorder) LogLogin(username string, success bool, ip, userAgent, failureReason string) {
	action := ActionLoginFailure
	if success {
		action = ActionLoginSuccess
	}
	r.Record(username, action, "StudioAdmin", nil, nil, strPtr(failureReason), ip, userAgent)
}

func (r *Recorder) LogAccountLocked(username, ip, userAgent string) {
	r.Record(username, ActionAccountLocked, "StudioAdmin", nil, nil, nil, ip, userAgent)
}

func (r *Recorder) LogStatusChange(actor, requestID, oldStatus, newStatus, ip, userAgent string) {
	r.Record(actor, ActionStatusChange, "ProjectRequest", strPtr(requestID), strPtr(oldStatus), strPtr(newStatus), ip, userAgent)
}

func (r *Recorder) LogDelete(actor, requestID, ip, userAgent string) {
	r.Record(actor, ActionSoftDelete, "ProjectRequest", strPtr(requestID), strPtr("ACTIVE"), strPtr("DELETED"), ip, userAgent)
}

func (r *Recorder) LogView(actor, requestID, ip, userAgent string) {
	r.Record(actor, ActionViewRequest, "ProjectRequest", strPtr(requestID), nil, nil, ip, userAgent)
}

func (r *Recorder) LogExport(actor, exportType, ip, userAgent string) {
	r.Record(actor, ActionExportData, "ProjectRequest", nil, nil, strPtr(exportType), ip, userAgent)
}

// LogSecurityEvent records anonymous security signals such as rate-limit hits
// and rejected tokens.
func (r *Recorder) LogSecurityEvent(action Action, details, ip, userAgent string) {
	r.Record("", action, "SECURITY", nil, nil, strPtr(truncate(details, maxUserAgentLen)), ip, userAgent)
}
