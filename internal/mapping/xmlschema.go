// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package mapping implements the mapping compiler (C10): it parses mapping
// markup (one namespace per document) into the registry's MappedStatements,
// ResultMaps, ParameterMaps, and namespace caches, resolving forward
// references the way org.apache.ibatis.builder.xml.XMLMapperBuilder does.
package mapping

import "encoding/xml"

// mapperXML is the root `<mapper>` element of one mapping document. Most
// child elements are plain attribute bags handled by encoding/xml directly;
// statement bodies and `<sql>` fragments capture their raw inner markup via
// InnerXML so the dynamic-SQL tree builder (dynbuild.go) can stream-parse
// mixed text/element content that a struct-tag unmarshal can't represent.
type mapperXML struct {
	XMLName       xml.Name          `xml:"mapper"`
	Namespace     string            `xml:"namespace,attr"`
	Cache         *cacheXML         `xml:"cache"`
	CacheRef      *cacheRefXML      `xml:"cache-ref"`
	ParameterMaps []parameterMapXML `xml:"parameterMap"`
	ResultMaps    []resultMapXML    `xml:"resultMap"`
	Fragments     []sqlFragmentXML  `xml:"sql"`
	Selects       []statementXML    `xml:"select"`
	Inserts       []statementXML    `xml:"insert"`
	Updates       []statementXML    `xml:"update"`
	Deletes       []statementXML    `xml:"delete"`
}

type cacheXML struct {
	Eviction      string `xml:"eviction,attr"`
	FlushInterval string `xml:"flushInterval,attr"`
	Size          string `xml:"size,attr"`
	ReadOnly      string `xml:"readOnly,attr"`
	Blocking      string `xml:"blocking,attr"`
}

type cacheRefXML struct {
	Namespace string `xml:"namespace,attr"`
}

type sqlFragmentXML struct {
	ID      string `xml:"id,attr"`
	InnerXML string `xml:",innerxml"`
}

type parameterMapXML struct {
	ID         string     `xml:"id,attr"`
	Type       string     `xml:"type,attr"`
	Parameters []paramXML `xml:"parameter"`
}

type paramXML struct {
	Property     string `xml:"property,attr"`
	JavaType     string `xml:"javaType,attr"`
	JdbcType     string `xml:"jdbcType,attr"`
	Mode         string `xml:"mode,attr"`
	NumericScale string `xml:"numericScale,attr"`
	ResultMap    string `xml:"resultMap,attr"`
}

type resultMapXML struct {
	ID            string            `xml:"id,attr"`
	Type          string            `xml:"type,attr"`
	Extends       string            `xml:"extends,attr"`
	AutoMapping   string            `xml:"autoMapping,attr"`
	Constructor   *constructorXML   `xml:"constructor"`
	IDs           []resultEntryXML  `xml:"id"`
	Results       []resultEntryXML  `xml:"result"`
	Associations  []resultEntryXML  `xml:"association"`
	Collections   []resultEntryXML  `xml:"collection"`
	Discriminator *discriminatorXML `xml:"discriminator"`
}

type constructorXML struct {
	IDArgs []resultEntryXML `xml:"idArg"`
	Args   []resultEntryXML `xml:"arg"`
}

// resultEntryXML covers <id>, <result>, <association>, <collection>,
// <idArg> and <arg> — they share the same attribute vocabulary in the
// markup this compiler accepts.
type resultEntryXML struct {
	Property      string `xml:"property,attr"`
	Column        string `xml:"column,attr"`
	JavaType      string `xml:"javaType,attr"`
	JdbcType      string `xml:"jdbcType,attr"`
	TypeHandler   string `xml:"typeHandler,attr"`
	Select        string `xml:"select,attr"`
	ResultMap     string `xml:"resultMap,attr"`
	ColumnPrefix  string `xml:"columnPrefix,attr"`
	ForeignColumn string `xml:"foreignColumn,attr"`
	NotNullColumn string `xml:"notNullColumn,attr"`
	Lazy          string `xml:"lazy,attr"`
}

type discriminatorXML struct {
	Column   string    `xml:"column,attr"`
	JavaType string    `xml:"javaType,attr"`
	JdbcType string    `xml:"jdbcType,attr"`
	Cases    []caseXML `xml:"case"`
}

type caseXML struct {
	Value     string `xml:"value,attr"`
	ResultMap string `xml:"resultMap,attr"`
}

type statementXML struct {
	ID                string        `xml:"id,attr"`
	ParameterType     string        `xml:"parameterType,attr"`
	ParameterMap      string        `xml:"parameterMap,attr"`
	ResultType        string        `xml:"resultType,attr"`
	ResultMap         string        `xml:"resultMap,attr"`
	ResultSets        string        `xml:"resultSets,attr"`
	StatementType     string        `xml:"statementType,attr"`
	FetchSize         string        `xml:"fetchSize,attr"`
	Timeout           string        `xml:"timeout,attr"`
	FlushCache        string        `xml:"flushCache,attr"`
	UseCache          string        `xml:"useCache,attr"`
	UseGeneratedKeys  string        `xml:"useGeneratedKeys,attr"`
	KeyProperty       string        `xml:"keyProperty,attr"`
	KeyColumn         string        `xml:"keyColumn,attr"`
	DatabaseID        string        `xml:"databaseId,attr"`
	ResultOrdered     string        `xml:"resultOrdered,attr"`
	SelectKey         *selectKeyXML `xml:"selectKey"`
	InnerXML          string        `xml:",innerxml"`
}

type selectKeyXML struct {
	KeyProperty   string `xml:"keyProperty,attr"`
	KeyColumn     string `xml:"keyColumn,attr"`
	Order         string `xml:"order,attr"`
	ResultType    string `xml:"resultType,attr"`
	StatementType string `xml:"statementType,attr"`
	InnerXML      string `xml:",innerxml"`
}
