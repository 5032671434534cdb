package ocsf

// Class ids of the built-in catalog
const (
	ClassFileSystemActivity  = 1001
	ClassKernelActivity      = 1003
	ClassSecurityFinding     = 2001
	ClassComplianceFinding   = 2003
	ClassDetectionFinding    = 2004
	ClassAccountChange       = 3001
	ClassAuthentication      = 3002
	ClassNetworkActivity     = 4001
	ClassHTTPActivity        = 4002
	ClassDNSActivity         = 4003
	ClassDatabaseActivity    = 5001
	ClassApplicationActivity = 6001
	ClassAPIActivity         = 6003
)

func endpointMapping(prefix string) Mapping {
	return Mapping{
		prefix + ".ip":       IP,
		prefix + ".port":     Integer,
		prefix + ".hostname": Keyword,
	}
}

func userMapping(prefix string) Mapping {
	return Mapping{
		prefix + ".name":    Keyword,
		prefix + ".uid":     Keyword,
		prefix + ".type":    Keyword,
		prefix + ".type_id": Integer,
		prefix + ".domain":  Keyword,
	}
}

var userTypeIDs = []int{0, 1, 2, 3, 99}

var findingActivities = map[int]string{
	0: "Unknown", 1: "Create", 2: "Update", 3: "Close", 99: "Other",
}

// findingMapping covers the finding object and detection source shared by
// the finding classes
func findingMapping() Mapping {
	return Mapping{
		"finding.uid":                   Keyword,
		"finding.title":                 Text,
		"finding.type":                  Keyword,
		"finding.type_id":               Integer,
		"finding.categories":            Keyword,
		"finding.message":               Text,
		"finding.risk_score":            Integer,
		"finding.risk_level":            Keyword,
		"metadata.created_time":         Date,
		"detection_source.name":         Keyword,
		"detection_source.uid":          Keyword,
		"finding.src_endpoint.ip":       IP,
		"finding.src_endpoint.hostname": Keyword,
	}
}

// FileSystemActivity is class 1001
var FileSystemActivity = Class{
	UID:          ClassFileSystemActivity,
	Name:         "File System Activity",
	Slug:         "fs_activity",
	CategoryUID:  CategorySystem,
	CategoryName: "System Activity",
	Activities: map[int]string{
		0: "Unknown", 1: "Create", 2: "Read", 3: "Update", 4: "Delete", 5: "Rename",
		6: "Set Attributes", 7: "Set Security", 8: "Get Attributes", 9: "Get Security",
		10: "Encrypt", 11: "Decrypt", 12: "Mount", 13: "Unmount", 14: "Open", 99: "Other",
	},
	Required: []string{
		"file.name",
		"file.path",
		"file.type_id",
		"actor.user.name",
		"device.hostname",
	},
	Enums: map[string][]int{
		"file.type_id":       {0, 1, 2, 3, 4, 5, 6, 7, 99},
		"actor.user.type_id": userTypeIDs,
	},
	Mapping: Mapping{
		"file.name":         Keyword,
		"file.path":         Keyword,
		"file.type":         Keyword,
		"file.type_id":      Integer,
		"file.size":         Long,
		"file.extension":    Keyword,
		"file.owner.name":   Keyword,
		"file.group.name":   Keyword,
		"file.permissions":  Keyword,
		"file_result.path":  Keyword,
		"process.pid":       Integer,
		"process.name":      Keyword,
		"process.file.path": Keyword,
		"device.hostname":   Keyword,
		"device.ip":         IP,
	}.Merge(userMapping("actor.user")),
}

// KernelActivity is class 1003
var KernelActivity = Class{
	UID:          ClassKernelActivity,
	Name:         "Kernel Activity",
	Slug:         "kernel_activity",
	CategoryUID:  CategorySystem,
	CategoryName: "System Activity",
	Activities: map[int]string{
		0: "Unknown", 1: "Create", 2: "Read", 3: "Delete", 4: "Invoke", 99: "Other",
	},
	Required: []string{
		"kernel.operation",
		"kernel.version",
		"process.pid",
		"device.hostname",
	},
	Mapping: Mapping{
		"kernel.version":             Keyword,
		"kernel.architecture":        Keyword,
		"kernel.operation":           Keyword,
		"kernel.module.name":         Keyword,
		"kernel.module.parameters":   Keyword,
		"kernel.syscall.name":        Keyword,
		"kernel.syscall.arguments":   Keyword,
		"kernel.parameter.name":      Keyword,
		"kernel.parameter.old_value": Keyword,
		"kernel.parameter.new_value": Keyword,
		"process.pid":                Integer,
		"process.name":               Keyword,
		"process.file.path":          Keyword,
		"device.hostname":            Keyword,
		"device.uid":                 Keyword,
	},
}

// SecurityFinding is class 2001
var SecurityFinding = Class{
	UID:          ClassSecurityFinding,
	Name:         "Security Finding",
	Slug:         "security_finding",
	CategoryUID:  CategoryFindings,
	CategoryName: "Findings",
	Activities:   findingActivities,
	Statuses:     FindingStatusNames,
	Required: []string{
		"finding.uid",
		"finding.title",
		"finding.type_id",
		"detection_source.name",
	},
	Enums: map[string][]int{
		"finding.type_id": {1, 2, 3, 4, 5, 99},
	},
	Mapping: findingMapping(),
}

// ComplianceFinding is class 2003
var ComplianceFinding = Class{
	UID:          ClassComplianceFinding,
	Name:         "Compliance Finding",
	Slug:         "compliance_finding",
	CategoryUID:  CategoryFindings,
	CategoryName: "Findings",
	Activities:   findingActivities,
	Statuses:     FindingStatusNames,
	Required: []string{
		"finding.uid",
		"finding.title",
		"finding.compliance.framework.name",
		"finding.compliance.requirement.id",
	},
	Mapping: Mapping{
		"finding.compliance.framework.name":          Keyword,
		"finding.compliance.framework.version":       Keyword,
		"finding.compliance.framework.description":   Text,
		"finding.compliance.requirement.id":          Keyword,
		"finding.compliance.requirement.description": Text,
		"finding.resources.type":                     Keyword,
		"finding.resources.name":                     Keyword,
		"finding.resources.uid":                      Keyword,
		"finding.remediation.description":            Text,
		"finding.remediation.deadline":               Date,
	}.Merge(findingMapping()),
}

// DetectionFinding is class 2004
var DetectionFinding = Class{
	UID:          ClassDetectionFinding,
	Name:         "Detection Finding",
	Slug:         "detection_finding",
	CategoryUID:  CategoryFindings,
	CategoryName: "Findings",
	Activities:   findingActivities,
	Statuses:     FindingStatusNames,
	Required: []string{
		"finding.uid",
		"finding.title",
		"finding.type_id",
		"finding.confidence",
		"detection.rule.uid",
	},
	Enums: map[string][]int{
		"finding.type_id":   {1, 2, 3, 4, 5, 99},
		"detection.type_id": {0, 1, 2, 99},
	},
	Mapping: Mapping{
		"finding.confidence":                         Integer,
		"finding.src_endpoint.processes.pid":         Integer,
		"finding.src_endpoint.processes.name":        Keyword,
		"finding.threat_intel.indicators.type":       Keyword,
		"finding.threat_intel.indicators.value":      Keyword,
		"finding.threat_intel.indicators.confidence": Integer,
		"finding.threat_intel.sources.name":          Keyword,
		"finding.threat_intel.sources.uid":           Keyword,
		"detection.rule.uid":                         Keyword,
		"detection.rule.name":                        Keyword,
		"detection.rule.version":                     Keyword,
		"detection.type":                             Keyword,
		"detection.type_id":                          Integer,
	}.Merge(findingMapping()),
}

// AccountChange is class 3001
var AccountChange = Class{
	UID:          ClassAccountChange,
	Name:         "Account Change",
	Slug:         "account_change",
	CategoryUID:  CategoryIAM,
	CategoryName: "Identity & Access Management",
	Activities: map[int]string{
		0: "Unknown", 1: "Create", 2: "Enable", 3: "Password Change", 4: "Password Reset",
		5: "Disable", 6: "Delete", 7: "Attach Policy", 8: "Detach Policy", 9: "Lock", 99: "Other",
	},
	Required: []string{
		"user.name",
		"user.uid",
		"actor.user.name",
	},
	Enums: map[string][]int{
		"user.type_id":       userTypeIDs,
		"actor.user.type_id": userTypeIDs,
	},
	Mapping: Mapping{
		"user.groups.name":        Keyword,
		"actor.user.groups.name":  Keyword,
		"auth_protocol":           Keyword,
		"unmapped.session_id":     Keyword,
		"unmapped.request_id":     Keyword,
		"unmapped.lock_duration":  Integer,
		"unmapped.password_score": Integer,
	}.Merge(userMapping("user")).Merge(userMapping("actor.user")),
}

// Authentication is class 3002
var Authentication = Class{
	UID:          ClassAuthentication,
	Name:         "Authentication",
	Slug:         "authentication",
	CategoryUID:  CategoryIAM,
	CategoryName: "Identity & Access Management",
	Activities: map[int]string{
		0: "Unknown", 1: "Logon", 2: "Logoff", 3: "Authentication Ticket",
		4: "Service Ticket Request", 5: "Service Ticket Renew", 99: "Other",
	},
	Required: []string{
		"user.name",
		"auth_protocol_id",
		"logon_type_id",
		"src_endpoint.ip",
		"dst_endpoint.ip",
	},
	Enums: map[string][]int{
		"auth_protocol_id": {0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 99},
		"logon_type_id":    {0, 1, 2, 3, 4, 5, 7, 8, 9, 10, 11, 12, 13, 99},
		"user.type_id":     userTypeIDs,
	},
	Mapping: Mapping{
		"auth_protocol":    Keyword,
		"auth_protocol_id": Integer,
		"logon_type":       Keyword,
		"logon_type_id":    Integer,
		"is_mfa":           Boolean,
		"is_remote":        Boolean,
		"session.uid":      Keyword,
		"service.name":     Keyword,
		"service.uid":      Keyword,
		"status_detail":    Keyword,
	}.Merge(userMapping("user")).Merge(endpointMapping("src_endpoint")).Merge(endpointMapping("dst_endpoint")),
}

// NetworkActivity is class 4001
var NetworkActivity = Class{
	UID:          ClassNetworkActivity,
	Name:         "Network Activity",
	Slug:         "network_activity",
	CategoryUID:  CategoryNetwork,
	CategoryName: "Network Activity",
	Activities: map[int]string{
		0: "Unknown", 1: "Open", 2: "Close", 3: "Reset", 4: "Fail", 5: "Refuse",
		6: "Traffic", 7: "Listen", 99: "Other",
	},
	Required: []string{
		"src_endpoint.ip",
		"dst_endpoint.ip",
		"dst_endpoint.port",
		"connection_info.protocol_name",
		"connection_info.direction_id",
	},
	Enums: map[string][]int{
		"connection_info.direction_id": {0, 1, 2, 3, 99},
		"connection_info.protocol_num": {1, 6, 17},
	},
	Mapping: Mapping{
		"connection_info.protocol_name": Keyword,
		"connection_info.protocol_num":  Integer,
		"connection_info.direction":     Keyword,
		"connection_info.direction_id":  Integer,
		"connection_info.uid":           Keyword,
		"app_name":                      Keyword,
		"traffic.bytes_in":              Long,
		"traffic.bytes_out":             Long,
		"traffic.packets_in":            Long,
		"traffic.packets_out":           Long,
	}.Merge(endpointMapping("src_endpoint")).Merge(endpointMapping("dst_endpoint")),
}

// HTTPActivity is class 4002
var HTTPActivity = Class{
	UID:          ClassHTTPActivity,
	Name:         "HTTP Activity",
	Slug:         "http_activity",
	CategoryUID:  CategoryNetwork,
	CategoryName: "Network Activity",
	Activities: map[int]string{
		0: "Unknown", 1: "Connect", 2: "Delete", 3: "Get", 4: "Head", 5: "Options",
		6: "Post", 7: "Put", 8: "Trace", 9: "Patch", 99: "Other",
	},
	Required: []string{
		"http_request.http_method",
		"http_request.url.path",
		"http_response.code",
		"src_endpoint.ip",
		"dst_endpoint.ip",
	},
	Mapping: Mapping{
		"http_request.http_method":      Keyword,
		"http_request.version":          Keyword,
		"http_request.length":           Long,
		"http_request.url.path":         Keyword,
		"http_request.url.hostname":     Keyword,
		"http_request.url.url_string":   Keyword,
		"http_request.url.query_string": Keyword,
		"http_request.user_agent":       Keyword,
		"http_response.code":            Integer,
		"http_response.message":         Keyword,
		"http_response.content_type":    Keyword,
		"http_response.length":          Long,
		"user_agent.original":           Keyword,
		"user_agent.device.name":        Keyword,
		"user_agent.device.type":        Keyword,
		"user_agent.browser.name":       Keyword,
		"user_agent.browser.version":    Keyword,
		"user_agent.os.name":            Keyword,
		"user_agent.os.version":         Keyword,
	}.Merge(endpointMapping("src_endpoint")).Merge(endpointMapping("dst_endpoint")),
}

// DNSActivity is class 4003
var DNSActivity = Class{
	UID:          ClassDNSActivity,
	Name:         "DNS Activity",
	Slug:         "dns_activity",
	CategoryUID:  CategoryNetwork,
	CategoryName: "Network Activity",
	Activities: map[int]string{
		0: "Unknown", 1: "Query", 2: "Response", 6: "Traffic", 99: "Other",
	},
	Required: []string{
		"query.hostname",
		"query.type",
		"rcode_id",
		"src_endpoint.ip",
		"dst_endpoint.ip",
	},
	Enums: map[string][]int{
		"rcode_id": {0, 1, 2, 3, 4, 5, 99},
	},
	Mapping: Mapping{
		"query.hostname": Keyword,
		"query.type":     Keyword,
		"query.class":    Keyword,
		"query.uid":      Keyword,
		"rcode":          Keyword,
		"rcode_id":       Integer,
		"answers.rdata":  Keyword,
		"answers.type":   Keyword,
		"answers.ttl":    Integer,
	}.Merge(endpointMapping("src_endpoint")).Merge(endpointMapping("dst_endpoint")),
}

// DatabaseActivity is class 5001
var DatabaseActivity = Class{
	UID:          ClassDatabaseActivity,
	Name:         "Database Activity",
	Slug:         "database_activity",
	CategoryUID:  CategoryDiscovery,
	CategoryName: "Discovery",
	Activities: map[int]string{
		0: "Unknown", 1: "Select", 2: "Insert", 3: "Update", 4: "Delete", 5: "Create",
		6: "Alter", 7: "Drop", 8: "Grant", 9: "Revoke", 99: "Other",
	},
	Required: []string{
		"database.name",
		"database.operation",
		"database.query",
		"actor.user.name",
		"src_endpoint.ip",
		"dst_endpoint.ip",
	},
	Enums: map[string][]int{
		"actor.user.type_id": userTypeIDs,
	},
	Mapping: Mapping{
		"database.name":          Keyword,
		"database.instance":      Keyword,
		"database.schema":        Keyword,
		"database.operation":     Keyword,
		"database.query":         Text,
		"database.rows_affected": Integer,
		"database.rows_returned": Integer,
		"database.privileges":    Keyword,
	}.Merge(userMapping("actor.user")).Merge(endpointMapping("src_endpoint")).Merge(endpointMapping("dst_endpoint")),
}

// ApplicationActivity is class 6001
var ApplicationActivity = Class{
	UID:          ClassApplicationActivity,
	Name:         "Application Activity",
	Slug:         "application_activity",
	CategoryUID:  CategoryApplication,
	CategoryName: "Application Activity",
	Activities: map[int]string{
		0: "Unknown", 1: "Login", 2: "Logout", 3: "Create", 4: "Update", 5: "Delete",
		6: "Export", 7: "Import", 8: "Search", 99: "Other",
	},
	Required: []string{
		"application.name",
		"application.uid",
		"actor.user.name",
		"src_endpoint.ip",
	},
	Enums: map[string][]int{
		"actor.user.type_id": userTypeIDs,
	},
	Mapping: Mapping{
		"application.name":     Keyword,
		"application.uid":      Keyword,
		"application.category": Keyword,
		"application.version":  Keyword,
		"status_detail":        Keyword,
	}.Merge(userMapping("actor.user")).Merge(endpointMapping("src_endpoint")),
}

// APIActivity is class 6003
var APIActivity = Class{
	UID:          ClassAPIActivity,
	Name:         "API Activity",
	Slug:         "api_activity",
	CategoryUID:  CategoryApplication,
	CategoryName: "Application Activity",
	Activities: map[int]string{
		0: "Unknown", 1: "Create", 2: "Read", 3: "Update", 4: "Delete", 99: "Other",
	},
	Required: []string{
		"api.operation",
		"api.service.name",
		"api.response.code",
		"actor.user.name",
		"src_endpoint.ip",
	},
	Enums: map[string][]int{
		"actor.user.type_id": userTypeIDs,
	},
	Mapping: Mapping{
		"api.operation":         Keyword,
		"api.version":           Keyword,
		"api.service.name":      Keyword,
		"api.service.version":   Keyword,
		"api.request.uid":       Keyword,
		"api.response.code":     Integer,
		"api.response.message":  Keyword,
		"api.response.error":    Keyword,
		"http_request.url.path": Keyword,
		"unmapped.latency_ms":   Integer,
		"unmapped.client_id":    Keyword,
	}.Merge(userMapping("actor.user")).Merge(endpointMapping("src_endpoint")).Merge(endpointMapping("dst_endpoint")),
}

// Builtin returns the built-in classes ordered by class id
func Builtin() []Class {
	return []Class{
		FileSystemActivity,
		KernelActivity,
		SecurityFinding,
		ComplianceFinding,
		DetectionFinding,
		AccountChange,
		Authentication,
		NetworkActivity,
		HTTPActivity,
		DNSActivity,
		DatabaseActivity,
		ApplicationActivity,
		APIActivity,
	}
}
