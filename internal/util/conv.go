package util

// Float64Ptr 返回浮点数指针
func Float64Ptr(v float64) *float64 {
	return &v
}

// StringPtr 返回字符串指针，空字符串返回 nil
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
