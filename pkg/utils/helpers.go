package utils

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"

	"gorm.io/datatypes"
)

// CalculateMD5 计算字节切片的MD5十六进制摘要，用于上传文件去重
func CalculateMD5(data []byte) string {
	hasher := md5.New()
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil))
}

// MarshalJSONArray 将字符串数组序列化为datatypes.JSON
// 序列化失败时返回空JSON数组而不是错误，调用方多用于落库前的尽力转换
func MarshalJSONArray(arr []string) datatypes.JSON {
	if len(arr) == 0 {
		return datatypes.JSON("[]")
	}

	jsonBytes, err := json.Marshal(arr)
	if err != nil {
		return datatypes.JSON("[]")
	}

	return datatypes.JSON(jsonBytes)
}
