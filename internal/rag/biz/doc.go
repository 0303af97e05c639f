// Package biz 提供查询链路的业务逻辑层。
//
// 组件：
//   - Retriever: 按租户检索文本块，并在边界处规范化原始结构
//   - ResponseCache: 远端缓存 + 本地兜底缓存
//   - Generator: 组装带编号的上下文并调用生成后端
//   - RAGService: 串联缓存、检索、隔离校验、重排序、生成与裁剪
package biz
